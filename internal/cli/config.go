package cli

import (
	"fmt"

	appconfig "github.com/lewisedginton/orchestrate_relay/internal/config"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
		},
	}
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	log.Info("Validating configuration")

	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		log.Error("Configuration validation failed", logger.ErrorField(err))
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg.LogConfig(log)

	log.Info("Configuration validation passed")
	_, _ = fmt.Fprintln(ctx.App.Writer, "Configuration is valid")
	return nil
}
