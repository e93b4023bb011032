// ABOUTME: Score trend over a client's most recent interactions
// ABOUTME: Sums the last N applied deltas into rising, falling or steady
package scoring

import (
	"context"

	"github.com/harperreed/tradedesk/db"
)

const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendSteady  = "steady"
)

type Trend struct {
	Direction string `json:"direction"`
	Delta     int    `json:"delta"`
	Samples   int    `json:"samples"`
}

// ClientTrend sums the applied deltas of the last window interactions.
func ClientTrend(ctx context.Context, q db.Querier, clientID int64, window int) (Trend, error) {
	if window <= 0 {
		window = 5
	}
	recent, err := db.ListInteractions(ctx, q, clientID, window)
	if err != nil {
		return Trend{}, err
	}

	t := Trend{Samples: len(recent)}
	for _, in := range recent {
		t.Delta += in.AppliedDelta
	}
	switch {
	case t.Delta > 0:
		t.Direction = TrendRising
	case t.Delta < 0:
		t.Direction = TrendFalling
	default:
		t.Direction = TrendSteady
	}
	return t, nil
}
