// ABOUTME: Interaction recorder and scorer; the only writer of client scores
// ABOUTME: Records an interaction, rescores, relabels and raises requests in one transaction
package scoring

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/relevance"
	"github.com/harperreed/tradedesk/rules"
)

// RequestDedupWindow is how long an open request suppresses another of the
// same type for the same client.
const RequestDedupWindow = 24 * time.Hour

// Input describes one interaction to record. Intents and ReplyDelta come
// from the classifier and the reply analyzer.
type Input struct {
	ClientID    int64
	Date        time.Time
	MessageType string
	Channel     string
	Subject     string
	Body        string
	ExternalID  string
	Intents     []string
	ReplyDelta  int
}

// Outcome is what Record changed.
type Outcome struct {
	Interaction *models.Interaction
	Client      *models.Client
	OldScore    int
	Change      *models.ClassificationChange
	Request     *models.Request
	// RequestDeduped is true when an open request of the same type already
	// existed within RequestDedupWindow.
	RequestDeduped bool
}

type Recorder struct {
	db     *sql.DB
	rules  *rules.Store
	queue  *EventQueue
	logger zerolog.Logger
	now    func() time.Time

	// mu serialises every write to clients, interactions and requests.
	mu sync.Mutex
}

func NewRecorder(database *sql.DB, store *rules.Store, queue *EventQueue, logger zerolog.Logger) *Recorder {
	return &Recorder{
		db:     database,
		rules:  store,
		queue:  queue,
		logger: logger.With().Str("component", "recorder").Logger(),
		now:    time.Now,
	}
}

// Rules returns the rule store the recorder scores against.
func (r *Recorder) Rules() *rules.Store { return r.rules }

// Tx runs fn in a transaction while holding the write lock. fn must only use
// the Querier it is given.
func (r *Recorder) Tx(ctx context.Context, fn func(q db.Querier) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tx(ctx, fn)
}

func (r *Recorder) tx(ctx context.Context, fn func(q db.Querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage(fmt.Errorf("begin: %w", err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Storage(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Record appends an interaction and updates the client atomically. It returns
// errs.ErrDuplicate when the external id is already bound to this client and
// errs.ErrUnresolved when the client does not exist.
func (r *Recorder) Record(ctx context.Context, in Input) (*Outcome, error) {
	if in.MessageType == "" {
		return nil, fmt.Errorf("record: message type required: %w", errs.ErrInvalidState)
	}
	if in.Channel == "" {
		in.Channel = models.ChannelEmail
	}

	rb := r.rules.Current()
	out := &Outcome{}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.tx(ctx, func(q db.Querier) error {
		client, err := db.GetClient(ctx, q, in.ClientID)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("client %d: %w", in.ClientID, errs.ErrUnresolved)
		}

		if in.ExternalID != "" {
			existing, err := db.FindInteractionByExternalID(ctx, q, client.ID, in.ExternalID)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("external id %s: %w", in.ExternalID, errs.ErrDuplicate)
			}
		}

		applied := rb.EffectOf(in.MessageType) + in.ReplyDelta
		interaction := &models.Interaction{
			ClientID:     client.ID,
			Date:         in.Date,
			Channel:      in.Channel,
			MessageType:  in.MessageType,
			Subject:      in.Subject,
			Body:         in.Body,
			AppliedDelta: applied,
			ExternalID:   in.ExternalID,
		}
		if interaction.Date.IsZero() {
			interaction.Date = r.now()
		}
		if err := db.InsertInteraction(ctx, q, interaction); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("external id %s: %w", in.ExternalID, errs.ErrDuplicate)
			}
			return err
		}

		oldScore, oldBand := client.Score, client.Classification
		client.Score += applied
		client.Classification = rb.Classify(client.Score).Label
		if status, ok := models.StatusForMessageType(in.MessageType); ok {
			client.Status = status
		}
		if err := db.UpdateClientScore(ctx, q, client.ID, client.Status, client.Score, client.Classification); err != nil {
			return err
		}

		out.Interaction = interaction
		out.Client = client
		out.OldScore = oldScore

		if oldBand != client.Classification {
			change := &models.ClassificationChange{
				ID:        newEventID(),
				ClientID:  client.ID,
				OldBand:   oldBand,
				NewBand:   client.Classification,
				OldScore:  oldScore,
				NewScore:  client.Score,
				Reason:    fmt.Sprintf("%s %+d", in.MessageType, applied),
				CreatedAt: r.now().UTC(),
			}
			if err := db.InsertClassificationChange(ctx, q, change); err != nil {
				return err
			}
			out.Change = change
		}

		return r.ensureRequest(ctx, q, client, interaction, in.Intents, out)
	})
	if err != nil {
		return nil, err
	}

	if out.Change != nil {
		r.queue.Publish(Event{
			ID:       out.Change.ID,
			Kind:     KindClassificationChanged,
			At:       out.Change.CreatedAt,
			ClientID: out.Client.ID,
			Change:   out.Change,
		})
		r.logger.Info().
			Int64("client_id", out.Client.ID).
			Str("old_band", out.Change.OldBand).
			Str("new_band", out.Change.NewBand).
			Int("old_score", out.Change.OldScore).
			Int("new_score", out.Change.NewScore).
			Msg("classification changed")
	}

	return out, nil
}

func (r *Recorder) ensureRequest(ctx context.Context, q db.Querier, client *models.Client, interaction *models.Interaction, intents []string, out *Outcome) error {
	requestType := relevance.PrimaryIntent(intents)
	if requestType == "" {
		return nil
	}

	now := r.now()
	open, err := db.LatestOpenRequest(ctx, q, client.ID, requestType)
	if err != nil {
		return err
	}
	if open != nil && now.Sub(open.CreatedAt) < RequestDedupWindow {
		out.RequestDeduped = true
		return nil
	}

	req := &models.Request{
		ClientID:      client.ID,
		Email:         client.Email,
		InteractionID: interaction.ID,
		RequestType:   requestType,
		CreatedAt:     now.UTC(),
	}
	if err := db.InsertRequest(ctx, q, req); err != nil {
		return err
	}
	out.Request = req
	return nil
}

// MarkRequestReplied moves a pending request to replied and closes it.
func (r *Recorder) MarkRequestReplied(ctx context.Context, requestID string) (*models.Request, error) {
	var req *models.Request

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.tx(ctx, func(q db.Querier) error {
		if err := db.UpdateRequestReplyStatus(ctx, q, requestID, models.ReplyReplied, models.RequestClosed, r.now()); err != nil {
			return err
		}
		var err error
		req, err = db.GetRequest(ctx, q, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.queue.Publish(Event{
		ID:       newEventID(),
		Kind:     KindRequestResolved,
		At:       r.now().UTC(),
		ClientID: req.ClientID,
		Request:  req,
	})
	r.logger.Info().Str("request_id", req.ID).Int64("client_id", req.ClientID).Msg("request marked replied")
	return req, nil
}
