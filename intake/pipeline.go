// ABOUTME: Per-message intake pipeline from relevance filter to recorded interaction
// ABOUTME: Classifies, analyses the reply, resolves the sender and records in order
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/linker"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/relevance"
	"github.com/harperreed/tradedesk/reply"
	"github.com/harperreed/tradedesk/rules"
	"github.com/harperreed/tradedesk/scoring"
)

// Outcomes of processing one message.
const (
	OutcomeRecorded   = "recorded"
	OutcomeIrrelevant = "irrelevant"
	OutcomeDuplicate  = "duplicate"
	OutcomeUnresolved = "unresolved"
	OutcomeFailed     = "failed"
)

const vagueReplyMaxWords = 8

type Result struct {
	Outcome     string
	Reason      string
	MessageType string
	Intents     []string
	ClientID    int64
	Recorded    *scoring.Outcome
}

type Pipeline struct {
	recorder *scoring.Recorder
	resolver *linker.Resolver
	logger   zerolog.Logger
}

func NewPipeline(recorder *scoring.Recorder, resolver *linker.Resolver, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		recorder: recorder,
		resolver: resolver,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Process runs one message through the pipeline. Irrelevant, duplicate and
// unresolved messages are reported in the Result with a nil error; only
// storage and unexpected failures return an error.
func (p *Pipeline) Process(ctx context.Context, msg Message, channel string) (Result, error) {
	rb := p.recorder.Rules().Current()

	rel := relevance.Classify(msg.Subject, msg.Body.Content, rb)
	if !rel.Keep && rel.Reason != relevance.ReasonSpam {
		known, err := p.knownSender(ctx, msg.From)
		if err != nil {
			return Result{Outcome: OutcomeFailed}, err
		}
		if known {
			rel.Keep, rel.Reason = true, relevance.ReasonKnownClient
		}
	}

	res := Result{Reason: rel.Reason, Intents: rel.Intents}
	if !rel.Keep {
		res.Outcome = OutcomeIrrelevant
		p.logger.Debug().Str("message_id", msg.ID).Str("reason", rel.Reason).Msg("skipped irrelevant message")
		return res, nil
	}

	analysis := reply.Disabled()
	if rb.AIEnabled {
		analysis = reply.Analyze(msg.Body.Content, rb)
	}
	res.MessageType = MessageTypeFor(rel, analysis, msg.Body.Content)

	var resolution linker.Resolution
	err := p.recorder.Tx(ctx, func(q db.Querier) error {
		var err error
		resolution, err = p.resolver.Resolve(ctx, q, rb, msg.From.Address, msg.From.Name)
		return err
	})
	if errors.Is(err, errs.ErrUnresolved) {
		res.Outcome = OutcomeUnresolved
		p.logger.Debug().Str("message_id", msg.ID).Str("from", msg.From.Address).Msg("skipped message with unusable sender")
		return res, nil
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}
	res.ClientID = resolution.Client.ID

	date := msg.ReceivedAt
	if date.IsZero() {
		date = time.Now()
	}

	out, err := p.recorder.Record(ctx, scoring.Input{
		ClientID:    resolution.Client.ID,
		Date:        date,
		MessageType: res.MessageType,
		Channel:     channel,
		Subject:     msg.Subject,
		Body:        msg.Body.Content,
		ExternalID:  msg.ID,
		Intents:     rel.Intents,
		ReplyDelta:  analysis.ScoreDelta,
	})
	if errors.Is(err, errs.ErrDuplicate) {
		res.Outcome = OutcomeDuplicate
		p.logger.Debug().Str("message_id", msg.ID).Int64("client_id", res.ClientID).Msg("skipped duplicate message")
		return res, nil
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}

	res.Outcome = OutcomeRecorded
	res.Recorded = out
	return res, nil
}

// knownSender reports whether the sender already belongs to a client, by
// exact email or by corporate domain. Any non-promotional mail from a client
// is worth recording.
func (p *Pipeline) knownSender(ctx context.Context, from Address) (bool, error) {
	var found bool
	err := p.recorder.Tx(ctx, func(q db.Querier) error {
		var err error
		_, found, err = p.resolver.Find(ctx, q, from.Address, from.Name)
		return err
	})
	if errors.Is(err, errs.ErrUnresolved) {
		return false, nil
	}
	return found, err
}

// MessageTypeFor derives the message type of an inbound message. The primary
// request intent decides; without one, a short reply with no question and
// no positive signal is vague.
func MessageTypeFor(rel relevance.Result, analysis reply.Analysis, body string) string {
	switch relevance.PrimaryIntent(rel.Intents) {
	case models.IntentSample:
		return models.MessageSamplesRequest
	case models.IntentPrice, models.IntentMOQ:
		return models.MessagePriceRequest
	case models.IntentSpecs:
		return models.MessageSpecsRequest
	}

	words := len(strings.Fields(body))
	hasQuestion := strings.ContainsAny(body, "?؟")
	if words < vagueReplyMaxWords && !hasQuestion && analysis.ScoreDelta <= 0 {
		return models.MessageVagueReply
	}
	return models.MessageReply
}

// RecordManual records an operator-entered interaction. Intents and the
// reply delta are derived from the text; callers never supply them.
func (p *Pipeline) RecordManual(ctx context.Context, in scoring.Input) (*scoring.Outcome, error) {
	if in.Channel != "" && !models.IsValidChannel(in.Channel) {
		return nil, fmt.Errorf("unknown channel %q: %w", in.Channel, errs.ErrInvalidState)
	}
	intents, analysis := AnalyzeManual(in.Subject, in.Body, p.recorder.Rules().Current())
	in.Intents = intents
	in.ReplyDelta = analysis.ScoreDelta

	out, err := p.recorder.Record(ctx, in)
	if err != nil {
		return nil, err
	}
	p.logger.Info().
		Int64("client_id", in.ClientID).
		Str("message_type", in.MessageType).
		Int("applied_delta", out.Interaction.AppliedDelta).
		Msg("manual interaction recorded")
	return out, nil
}

// AnalyzeManual scores an operator-entered interaction the same way as an
// inbound one, returning the intents and reply delta to record.
func AnalyzeManual(subject, body string, rb *rules.RuleBook) ([]string, reply.Analysis) {
	intents, _ := relevance.DetectRequestType(subject, body, rb)
	if !rb.AIEnabled {
		return intents, reply.Disabled()
	}
	return intents, reply.Analyze(body, rb)
}
