// ABOUTME: Signal handling for the long-running commands
// ABOUTME: SIGHUP re-reads the rule book without restarting
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/rules"
)

// reloadOnHangup reloads store on every SIGHUP until ctx ends. A rejected
// file leaves the previous rules active; Reload logs why.
func reloadOnHangup(ctx context.Context, store *rules.Store, logger zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info().Msg("SIGHUP received, reloading rule book")
				_ = store.Reload()
			}
		}
	}()
}
