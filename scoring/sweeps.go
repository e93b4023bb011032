// ABOUTME: Operator-triggered sweeps over all clients
// ABOUTME: Long-ignore flagging and the explicit band relabel after a threshold edit
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
)

type SweepResult struct {
	Flagged   int `json:"flagged"`
	Skipped   int `json:"skipped"`
	Relabeled int `json:"relabeled"`
}

// FlagIgnored records a long_ignore interaction for every client with no
// interaction in the last days. Re-running on the same day changes nothing.
func (r *Recorder) FlagIgnored(ctx context.Context, days int) (SweepResult, error) {
	var res SweepResult
	if days <= 0 {
		return res, fmt.Errorf("days must be positive: %w", errs.ErrInvalidState)
	}

	now := r.now()
	idle, err := db.ClientsIdleSince(ctx, r.db, now.AddDate(0, 0, -days))
	if err != nil {
		return res, err
	}

	externalID := "long_ignore:" + now.UTC().Format("2006-01-02")
	for _, c := range idle {
		_, err := r.Record(ctx, Input{
			ClientID:    c.ID,
			Date:        now,
			MessageType: models.MessageLongIgnore,
			Channel:     models.ChannelOther,
			Body:        fmt.Sprintf("No interaction for %d days", days),
			ExternalID:  externalID,
		})
		if errors.Is(err, errs.ErrDuplicate) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Flagged++
	}
	return res, nil
}

// Reclassify relabels every client whose stored band disagrees with the
// current thresholds. Bands otherwise only move when a client is next
// recorded against, so this is never run implicitly.
func (r *Recorder) Reclassify(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	rb := r.rules.Current()
	var changes []*models.ClassificationChange

	r.mu.Lock()
	err := r.tx(ctx, func(q db.Querier) error {
		clients, err := db.ListClients(ctx, q, db.ClientFilter{})
		if err != nil {
			return err
		}
		for _, c := range clients {
			label := rb.Classify(c.Score).Label
			if label == c.Classification {
				continue
			}
			if err := db.UpdateClientScore(ctx, q, c.ID, c.Status, c.Score, label); err != nil {
				return err
			}
			change := &models.ClassificationChange{
				ID:        newEventID(),
				ClientID:  c.ID,
				OldBand:   c.Classification,
				NewBand:   label,
				OldScore:  c.Score,
				NewScore:  c.Score,
				Reason:    "reclassify",
				CreatedAt: r.now().UTC(),
			}
			if err := db.InsertClassificationChange(ctx, q, change); err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return nil
	})
	r.mu.Unlock()
	if err != nil {
		return res, err
	}

	for _, change := range changes {
		r.queue.Publish(Event{
			ID:       change.ID,
			Kind:     KindClassificationChanged,
			At:       change.CreatedAt,
			ClientID: change.ClientID,
			Change:   change,
		})
	}
	res.Relabeled = len(changes)
	r.logger.Info().Int("relabeled", res.Relabeled).Msg("reclassify sweep finished")
	return res, nil
}
