// ABOUTME: Entry point for the tradedesk CLI, MCP server and status server
// ABOUTME: Loads .env, runs the command tree and maps failures to exit codes
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/tradedesk/cli"
	"github.com/harperreed/tradedesk/config"
	"github.com/harperreed/tradedesk/errs"
)

const version = "0.2.0"

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errs.ExitCode(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, version); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(errs.ExitCode(err))
	}
}
