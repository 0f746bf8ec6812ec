// Package cli implements the relay command line: serve, ask and config validate.
package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

const loggerKey = "logger"

// NewApp returns the relay CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "relay",
		Usage:   "HTTP relay between chat frontends and a watsonx Orchestrate agent",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level for CLI output (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to a YAML configuration file; environment variables take precedence",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "Path to a .env file loaded before configuration",
				EnvVars: []string{"ENV_FILE"},
			},
		},
		Before: before,
		Commands: []*cli.Command{
			ServeCommand(),
			AskCommand(),
			ConfigCommand(),
		},
	}
}

func before(ctx *cli.Context) error {
	log := logger.NewLogger(logger.Config{
		Level:   logger.ParseLevel(ctx.String("log-level")),
		Format:  "json",
		Service: "orchestrate-relay",
		Output:  ctx.App.ErrWriter,
	})

	ctx.App.Metadata = map[string]interface{}{
		loggerKey: log,
	}

	return loadEnvFile(ctx, log)
}

// loadEnvFile applies the .env file without overriding variables that are
// already set. A missing default file is fine; a missing file named
// explicitly is an error.
func loadEnvFile(ctx *cli.Context, log logger.Logger) error {
	path := ctx.String("env-file")
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		log.Debug("Loaded environment file", logger.StringField("path", path))
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !ctx.IsSet("env-file") {
		log.Debug("No environment file found", logger.StringField("path", path))
		return nil
	}
	return cli.Exit("failed to load env file "+path+": "+err.Error(), 1)
}

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata[loggerKey].(logger.Logger); ok {
			return log
		}
	}

	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: "orchestrate-relay",
		Output:  os.Stderr,
	})
}
