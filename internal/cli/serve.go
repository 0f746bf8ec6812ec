package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	appconfig "github.com/lewisedginton/orchestrate_relay/internal/config"
	"github.com/lewisedginton/orchestrate_relay/internal/server"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

// ServeCommand returns the command that runs the HTTP relay.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP relay",
		Action:  serveAction,
	}
}

func serveAction(ctx *cli.Context) error {
	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		getLogger(ctx).Error("Failed to load config", logger.ErrorField(err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogger(cfg.LoggerConfig())
	cfg.LogConfig(log)

	s, err := server.New(cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Run(runCtx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
