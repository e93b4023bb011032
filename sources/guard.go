// ABOUTME: Circuit breaker around a mail source
// ABOUTME: A source that keeps failing is short-circuited and reported as transient
package sources

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
)

// Guard wraps a MessageSource in a circuit breaker. Once open, reads fail
// fast with errs.ErrProviderTransient until the breaker half-opens.
type Guard struct {
	name   string
	source intake.MessageSource
	cb     *gobreaker.CircuitBreaker
}

func NewGuard(name string, source intake.MessageSource, logger zerolog.Logger) *Guard {
	log := logger.With().Str("component", "breaker").Str("source", name).Logger()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Our own cancellation says nothing about the provider.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &Guard{name: name, source: source, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (g *Guard) Read(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.source.Read(ctx, folder, max, since)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errs.ProviderTransient(g.name, err)
	}
	if err != nil {
		return nil, err
	}
	msgs, _ := out.([]intake.Message)
	return msgs, nil
}

// State reports the breaker state for status displays.
func (g *Guard) State() string {
	return g.cb.State().String()
}
