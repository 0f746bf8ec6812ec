package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lewisedginton/orchestrate_relay/internal/cli"
)

func main() {
	if err := cli.NewApp().RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
