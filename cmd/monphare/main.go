// MonPhare audits Terraform/OpenTofu version pinning across repositories.
//
// Usage:
//
//	monphare scan ./infra --strict
//	monphare scan --github my-org --format json --output report.json
//	monphare graph ./infra --format dot
//	monphare init
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "monphare",
		Usage:   "Audit Terraform/OpenTofu module, provider and runtime version constraints",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"MONPHARE_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to monphare.yaml",
				EnvVars: []string{"MONPHARE_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			initLogger(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			scanCommand(),
			graphCommand(),
			initCommand(),
			validateCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, "monphare:", msg)
			}
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, "monphare:", err)
		os.Exit(1)
	}
}

func initLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}
