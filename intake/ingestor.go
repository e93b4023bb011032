// ABOUTME: Ingestion loop polling every configured mail source in turn
// ABOUTME: Single-flight, per-fetch timeout, retry with backoff, cancel between pages, poll summary
package intake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/metrics"
)

type Options struct {
	FetchTimeout    time.Duration
	Retries         int
	BackoffBase     time.Duration
	InitialLookback time.Duration
	DefaultMax      int
}

func DefaultOptions() Options {
	return Options{
		FetchTimeout:    30 * time.Second,
		Retries:         3,
		BackoffBase:     time.Second,
		InitialLookback: 30 * 24 * time.Hour,
		DefaultMax:      100,
	}
}

// Summary reports what one poll did.
type Summary struct {
	StartedAt             time.Time      `json:"started_at"`
	FinishedAt            time.Time      `json:"finished_at"`
	Sources               int            `json:"sources"`
	Read                  int            `json:"read"`
	Kept                  int            `json:"kept"`
	Recorded              int            `json:"recorded"`
	SkippedIrrelevant     int            `json:"skipped_irrelevant"`
	SkippedDuplicate      int            `json:"skipped_duplicate"`
	SkippedUnresolved     int            `json:"skipped_unresolved"`
	IntentsByTag          map[string]int `json:"intents_by_tag"`
	ClassificationChanges int            `json:"classification_changes"`
	ErrorsByKind          map[string]int `json:"errors_by_kind"`
	Cancelled             bool           `json:"cancelled"`
}

func newSummary(start time.Time) *Summary {
	return &Summary{
		StartedAt:    start,
		IntentsByTag: make(map[string]int),
		ErrorsByKind: make(map[string]int),
	}
}

type Ingestor struct {
	db       *sql.DB
	pipeline *Pipeline
	feeds    []Feed
	opts     Options
	metrics  *metrics.IngestMetrics
	logger   zerolog.Logger

	running   atomic.Bool
	cancelled atomic.Bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewIngestor(database *sql.DB, pipeline *Pipeline, feeds []Feed, opts Options, m *metrics.IngestMetrics, logger zerolog.Logger) *Ingestor {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultOptions().FetchTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.DefaultMax <= 0 {
		opts.DefaultMax = DefaultOptions().DefaultMax
	}
	return &Ingestor{
		db:       database,
		pipeline: pipeline,
		feeds:    feeds,
		opts:     opts,
		metrics:  m,
		logger:   logger.With().Str("component", "ingestor").Logger(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Running reports whether a poll is in progress.
func (i *Ingestor) Running() bool { return i.running.Load() }

// Cancel asks the running poll to stop before its next page.
func (i *Ingestor) Cancel() { i.cancelled.Store(true) }

// Poll reads every feed once. A second Poll while one is running returns
// errs.ErrPollInProgress. A provider rejecting credentials aborts the poll
// and is returned together with the partial summary.
func (i *Ingestor) Poll(ctx context.Context) (*Summary, error) {
	if !i.running.CompareAndSwap(false, true) {
		return nil, errs.ErrPollInProgress
	}
	defer i.running.Store(false)
	i.cancelled.Store(false)

	summary := newSummary(i.now())
	err := i.poll(ctx, summary)
	summary.FinishedAt = i.now()

	result := "ok"
	if err != nil {
		result = errs.Kind(err)
	} else if summary.Cancelled {
		result = "cancelled"
	}
	i.metrics.ObservePoll(result, summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	i.logger.Info().
		Int("sources", summary.Sources).
		Int("read", summary.Read).
		Int("kept", summary.Kept).
		Int("recorded", summary.Recorded).
		Int("skipped_irrelevant", summary.SkippedIrrelevant).
		Int("skipped_duplicate", summary.SkippedDuplicate).
		Int("skipped_unresolved", summary.SkippedUnresolved).
		Int("classification_changes", summary.ClassificationChanges).
		Interface("intents_by_tag", summary.IntentsByTag).
		Interface("errors_by_kind", summary.ErrorsByKind).
		Bool("cancelled", summary.Cancelled).
		Msg("poll finished")

	return summary, err
}

func (i *Ingestor) poll(ctx context.Context, summary *Summary) error {
	for _, feed := range i.feeds {
		if i.cancelled.Load() {
			summary.Cancelled = true
			return nil
		}
		if err := ctx.Err(); err != nil {
			summary.Cancelled = true
			return nil
		}

		summary.Sources++
		if err := i.pollFeed(ctx, feed, summary); err != nil {
			return err
		}
	}
	return nil
}

func (i *Ingestor) pollFeed(ctx context.Context, feed Feed, summary *Summary) error {
	log := i.logger.With().Str("source", feed.Name).Logger()

	since, err := i.cursor(ctx, feed.Name)
	if err != nil {
		summary.ErrorsByKind[errs.Kind(err)]++
		return err
	}
	if err := db.UpdateSyncStatus(ctx, i.db, feed.Name, db.SyncSyncing, ""); err != nil {
		summary.ErrorsByKind[errs.Kind(err)]++
		return err
	}

	pollStart := i.now()
	msgs, limit, err := i.fetch(ctx, feed, since)
	if err != nil {
		kind := errs.Kind(err)
		summary.ErrorsByKind[kind]++
		i.metrics.ObserveError(feed.Name, kind)
		_ = db.UpdateSyncStatus(context.WithoutCancel(ctx), i.db, feed.Name, db.SyncError, err.Error())
		if errors.Is(err, errs.ErrProviderAuth) {
			log.Error().Err(err).Msg("source rejected credentials, aborting poll")
			return err
		}
		if ctx.Err() != nil {
			summary.Cancelled = true
			return nil
		}
		log.Warn().Err(err).Int("retries", i.opts.Retries).Msg("skipping source page after retries")
		return nil
	}

	clean := true
	for _, msg := range msgs {
		summary.Read++
		res, err := i.pipeline.Process(ctx, msg, feed.Channel)
		i.metrics.ObserveMessage(feed.Name, res.Outcome)

		switch res.Outcome {
		case OutcomeIrrelevant:
			summary.SkippedIrrelevant++
			continue
		case OutcomeUnresolved:
			summary.Kept++
			summary.SkippedUnresolved++
			continue
		case OutcomeDuplicate:
			summary.Kept++
			summary.SkippedDuplicate++
			continue
		case OutcomeRecorded:
			summary.Kept++
			summary.Recorded++
			for _, tag := range res.Intents {
				summary.IntentsByTag[tag]++
				i.metrics.ObserveIntent(tag)
			}
			if res.Recorded != nil && res.Recorded.Change != nil {
				summary.ClassificationChanges++
				i.metrics.ObserveClassificationChange()
			}
			continue
		}

		// Failed: the message's transaction rolled back, keep going.
		summary.Kept++
		clean = false
		kind := errs.Kind(err)
		summary.ErrorsByKind[kind]++
		i.metrics.ObserveError(feed.Name, kind)
		log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to record message")
	}

	if !clean {
		// Leave the cursor so the failed messages are read again.
		return db.UpdateSyncStatus(ctx, i.db, feed.Name, db.SyncError, "some messages failed to record")
	}
	return db.MarkSynced(ctx, i.db, feed.Name, nextCursor(msgs, limit, pollStart), "")
}

// nextCursor is where the next poll of a feed starts. A full page may have
// left older messages unread, so the cursor only moves to the newest message
// seen; the overlap is absorbed by duplicate detection.
func nextCursor(msgs []Message, limit int, pollStart time.Time) time.Time {
	if len(msgs) < limit {
		return pollStart
	}
	var newest time.Time
	for _, m := range msgs {
		if m.ReceivedAt.After(newest) {
			newest = m.ReceivedAt
		}
	}
	if newest.IsZero() || newest.After(pollStart) {
		return pollStart
	}
	return newest
}

func (i *Ingestor) cursor(ctx context.Context, name string) (time.Time, error) {
	state, err := db.GetSyncState(ctx, i.db, name)
	if err != nil {
		return time.Time{}, err
	}
	if state != nil && state.LastSyncTime != nil {
		return *state.LastSyncTime, nil
	}
	return i.now().Add(-i.opts.InitialLookback), nil
}

// fetch reads one page with a per-attempt timeout, retrying transient
// failures with exponential backoff.
func (i *Ingestor) fetch(ctx context.Context, feed Feed, since time.Time) ([]Message, int, error) {
	limit := feed.Max
	if limit <= 0 {
		limit = i.opts.DefaultMax
	}

	var lastErr error
	for attempt := 0; attempt <= i.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := i.opts.BackoffBase << (attempt - 1)
			i.logger.Debug().Str("source", feed.Name).Int("attempt", attempt).Dur("backoff", backoff).
				Err(lastErr).Msg("retrying source")
			if err := i.sleep(ctx, backoff); err != nil {
				return nil, limit, err
			}
		}

		fctx, cancel := context.WithTimeout(ctx, i.opts.FetchTimeout)
		msgs, err := feed.Source.Read(fctx, feed.Folder, limit, since)
		cancel()
		if err == nil {
			return msgs, limit, nil
		}

		if errors.Is(err, errs.ErrProviderAuth) {
			return nil, limit, err
		}
		if ctx.Err() != nil {
			return nil, limit, ctx.Err()
		}
		if !errors.Is(err, errs.ErrProviderTransient) {
			err = errs.ProviderTransient(feed.Name, err)
		}
		lastErr = err
	}
	return nil, limit, fmt.Errorf("after %d retries: %w", i.opts.Retries, lastErr)
}
