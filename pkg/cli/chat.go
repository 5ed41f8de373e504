package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/docqa/pkg/adapter"
	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/docqa/pkg/usecase/chat"
	"github.com/m-mizutani/docqa/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const chatHelp = `Commands:
  /sources      show the sources of the last answer
  /1, /2, ...   ask a suggested question
  /export       export the conversation
  /new <path>   upload another document and start over
  /help         show this help
  exit          quit
`

func chatCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		filePath  string
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
			Usage:       "Document to upload before chatting",
			Destination: &filePath,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, exportFlags(&cfg)...)
	flags = append(flags, eventFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions about a document interactively",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
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

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          c.Root().Writer,
				Stderr:          c.Root().ErrWriter,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start prompt")
			}
			defer rl.Close()

			sh, err := newShell(ctx, shellInput{
				Backend:   backend,
				Storage:   storage,
				SessionID: model.SessionID(sessionID),
				Writer:    rl.Stdout(),
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

			fmt.Fprintf(sh.w, "%s\n(type /help for commands)\n", sh.session.Conversation().Last().Text)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				if sh.handle(ctx, line) {
					break
				}
			}

			return nil
		},
	}
}

type shellInput struct {
	Backend   adapter.Backend
	Storage   adapter.Storage
	SessionID model.SessionID
	Writer    io.Writer
	Progress  progressFunc
}

// shell interprets one line of user input at a time
type shell struct {
	backend  adapter.Backend
	session  *chat.Session
	exporter *chat.Exporter
	render   *renderer
	w        io.Writer
	progress progressFunc
}

func newShell(ctx context.Context, input shellInput) (*shell, error) {
	session, err := chat.New(chat.NewInput{
		Backend:   input.Backend,
		SessionID: input.SessionID,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat session")
	}

	progress := input.Progress
	if progress == nil {
		progress = noProgress
	}

	sh := &shell{
		backend:  input.Backend,
		session:  session,
		exporter: chat.NewExporter(input.Backend, input.Storage),
		render:   newRenderer(input.Writer),
		w:        input.Writer,
		progress: progress,
	}
	session.Conversation().Subscribe(sh.render.handle)

	logging.From(ctx).Debug("chat session ready", "session_id", input.SessionID)
	return sh, nil
}

// publishTo forwards every conversation event to pub
func (sh *shell) publishTo(ctx context.Context, pub adapter.Publisher) func() {
	return sh.session.Conversation().Subscribe(func(ev model.ConversationEvent) {
		if err := pub.Publish(ctx, sh.session.SessionID(), ev); err != nil {
			logging.From(ctx).Warn("failed to publish conversation event", "error", err, "kind", ev.Kind)
		}
	})
}

// handle runs one input line and reports whether the shell should quit
func (sh *shell) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch {
	case line == "exit" || line == "quit" || line == "/exit":
		return true

	case line == "/help":
		fmt.Fprint(sh.w, chatHelp)

	case line == "/sources":
		sh.showSources()

	case line == "/export":
		sh.export(ctx)

	case line == "/new" || strings.HasPrefix(line, "/new "):
		sh.newDocument(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/new")))

	case strings.HasPrefix(line, "/"):
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			fmt.Fprintf(sh.w, "Unknown command %q, type /help for commands\n", line)
			return false
		}
		suggestions := sh.session.Conversation().Suggestions()
		if n < 1 || n > len(suggestions) {
			fmt.Fprintf(sh.w, "No suggestion %d\n", n)
			return false
		}
		fmt.Fprintf(sh.w, "> %s\n", suggestions[n-1])
		sh.ask(ctx, suggestions[n-1])

	default:
		sh.ask(ctx, line)
	}

	return false
}

func (sh *shell) ask(ctx context.Context, question string) {
	stop := sh.progress("thinking...")
	sh.render.onOutput = stop
	defer func() {
		stop()
		sh.render.onOutput = nil
	}()

	if err := sh.session.Ask(ctx, question); err != nil {
		// the error turn has already been rendered
		logging.From(ctx).Warn("question failed", "error", err)
	}
}

func (sh *shell) showSources() {
	turns := sh.session.Conversation().All()
	for i := len(turns) - 1; i > 0; i-- {
		t := turns[i]
		if t.Speaker != model.SpeakerAssistant || t.Pending {
			continue
		}
		if len(t.Sources) == 0 {
			break
		}
		fmt.Fprintln(sh.w, "Sources:")
		for j, src := range t.Sources {
			fmt.Fprintf(sh.w, "  [%d] %s\n", j+1, src)
		}
		return
	}
	fmt.Fprintln(sh.w, "No sources for the last answer")
}

func (sh *shell) export(ctx context.Context) {
	stop := sh.progress("exporting...")
	location, err := sh.exporter.Export(ctx, sh.session.Conversation().All())
	stop()

	switch {
	case errors.Is(err, model.ErrNothingToExport):
		fmt.Fprintln(sh.w, "Nothing to export yet")
	case errors.Is(err, model.ErrExportInFlight):
		fmt.Fprintln(sh.w, "An export is already running")
	case err != nil:
		logging.From(ctx).Warn("export failed", "error", err)
		fmt.Fprintln(sh.w, "Export failed, please try again")
	default:
		fmt.Fprintf(sh.w, "Conversation exported to %s\n", location)
	}
}

func (sh *shell) newDocument(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintln(sh.w, "Usage: /new <path>")
		return
	}

	id, err := uploadFile(ctx, sh.backend, path, sh.progress)
	if err != nil {
		logging.From(ctx).Warn("upload failed", "error", err)
		fmt.Fprintln(sh.w, adapter.UploadErrorDetail(err))
		return
	}

	sh.session.Reset(id)
	fmt.Fprintf(sh.w, "Session %s started for %s\n", id, filepath.Base(path))
}

// uploadFile sends the document at path and returns the new session
func uploadFile(ctx context.Context, backend adapter.Backend, path string, progress progressFunc) (model.SessionID, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", goerr.Wrap(err, "failed to open document", goerr.V("path", path))
	}
	defer f.Close()

	stop := progress("processing " + filepath.Base(path) + "...")
	defer stop()

	id, err := backend.CreateSession(ctx, filepath.Base(path), f)
	if err != nil {
		return "", goerr.Wrap(err, "failed to upload document", goerr.V("path", path))
	}

	logging.From(ctx).Info("document uploaded", "session_id", id, "path", path)
	return id, nil
}
