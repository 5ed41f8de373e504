package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func healthCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "health",
		Usage: "Check that the document QA service is reachable",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			if err := cfg.newBackend().Ping(ctx); err != nil {
				return goerr.Wrap(err, "service is not healthy", goerr.V("endpoint", cfg.endpoint))
			}

			fmt.Fprintf(c.Root().Writer, "ok: %s\n", cfg.endpoint)
			return nil
		},
	}
}
