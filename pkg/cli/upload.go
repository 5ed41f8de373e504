package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func uploadCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a document and print its session ID",
		ArgsUsage: "<path>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			path := c.Args().First()
			if path == "" {
				return goerr.New("document path is required")
			}

			sessionID, err := uploadFile(ctx, cfg.newBackend(), path, spinnerProgress(c.Root().ErrWriter))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", sessionID)
			return nil
		},
	}
}
