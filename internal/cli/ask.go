package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lewisedginton/orchestrate_relay/internal/apperr"
	appconfig "github.com/lewisedginton/orchestrate_relay/internal/config"
	"github.com/lewisedginton/orchestrate_relay/internal/server"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

// AskCommand returns the command that relays a single query and prints the
// normalized response.
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Relay one query to the agent and print the JSON response",
		ArgsUsage: "<query>",
		Action:    askAction,
	}
}

func askAction(ctx *cli.Context) error {
	query := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if query == "" {
		return cli.Exit("usage: relay ask <query>", 2)
	}

	log := getLogger(ctx)
	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		log.Error("Failed to load config", logger.ErrorField(err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	relay, err := server.NewRelay(cfg, log, nil)
	if err != nil {
		return err
	}

	resp, err := relay.Relay(ctx.Context, query)
	if err != nil {
		body, _ := json.Marshal(map[string]string{"detail": apperr.Detail(err)})
		_, _ = fmt.Fprintln(ctx.App.ErrWriter, string(body))
		return cli.Exit(fmt.Sprintf("relay failed with status %d", apperr.HTTPStatus(err)), 1)
	}

	enc := json.NewEncoder(ctx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
