package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		filePath  string
		export    bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session of an already uploaded document",
			Sources:     cli.EnvVars("DOCQA_SESSION_ID"),
			Destination: &sessionID,
		},
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "Document to upload before asking",
			Destination: &filePath,
		},
		&cli.BoolFlag{
			Name:        "export",
			Aliases:     []string{"x"},
			Usage:       "Export the question and answer after it completes",
			Destination: &export,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, exportFlags(&cfg)...)
	flags = append(flags, eventFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a single question about a document",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return goerr.New("question is required")
			}
			if sessionID == "" && filePath == "" {
				return goerr.New("either --session-id or --file is required")
			}

			backend := cfg.newBackend()
			progress := spinnerProgress(c.Root().ErrWriter)

			if filePath != "" {
				id, err := uploadFile(ctx, backend, filePath, progress)
				if err != nil {
					return err
				}
				sessionID = id.String()
			}

			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			sh, err := newShell(ctx, shellInput{
				Backend:   backend,
				Storage:   storage,
				SessionID: model.SessionID(sessionID),
				Writer:    c.Root().Writer,
				Progress:  progress,
			})
			if err != nil {
				return err
			}

			pub, err := cfg.newPublisher(ctx)
			if err != nil {
				return err
			}
			if pub != nil {
				defer pub.Close()
				unsubscribe := sh.publishTo(ctx, pub)
				defer unsubscribe()
			}

			// sources are listed in full below
			sh.render.sourceHint = ""

			stop := progress("thinking...")
			sh.render.onOutput = stop
			err = sh.session.Ask(ctx, question)
			stop()
			sh.render.onOutput = nil
			if err != nil {
				return goerr.Wrap(err, "failed to answer question")
			}

			if len(sh.session.Conversation().Last().Sources) > 0 {
				sh.showSources()
			}
			if export {
				sh.export(ctx)
			}
			return nil
		},
	}
}
