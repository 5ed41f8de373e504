package chat

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/m-mizutani/docqa/pkg/adapter"
	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/docqa/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ExportFileName is the name the rendered transcript is delivered under
const ExportFileName = "docqa-conversation.pdf"

// Exporter renders a conversation through the remote service and delivers
// the artifact to a Storage. Only one export runs at a time.
type Exporter struct {
	backend  adapter.Backend
	storage  adapter.Storage
	fileName string
	busy     atomic.Bool
}

type ExporterOption func(*Exporter)

// WithFileName overrides ExportFileName
func WithFileName(name string) ExporterOption {
	return func(x *Exporter) {
		x.fileName = name
	}
}

func NewExporter(backend adapter.Backend, storage adapter.Storage, opts ...ExporterOption) *Exporter {
	x := &Exporter{
		backend:  backend,
		storage:  storage,
		fileName: ExportFileName,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Export sends every completed turn, oldest first and reduced to speaker and
// text, to the renderer and stores the returned artifact. An answer still
// streaming is left out. It returns where the artifact was delivered. A
// conversation holding only the greeting is refused without any request.
// Failures match both ErrExportFailed and their cause, are not retried and
// never touch the conversation.
func (x *Exporter) Export(ctx context.Context, turns []model.Turn) (string, error) {
	entries := make([]model.HistoryEntry, 0, len(turns))
	for _, t := range turns {
		if t.Pending {
			continue
		}
		entries = append(entries, t.Entry())
	}
	if len(entries) <= 1 {
		return "", model.ErrNothingToExport
	}

	if !x.busy.CompareAndSwap(false, true) {
		return "", model.ErrExportInFlight
	}
	defer x.busy.Store(false)

	artifact, err := x.render(ctx, entries)
	if err != nil {
		return "", goerr.Wrap(exportFailed(err), "render failed", goerr.V("turns", len(entries)))
	}

	if err := x.deliver(ctx, artifact); err != nil {
		return "", goerr.Wrap(exportFailed(err), "delivery failed", goerr.V("file", x.fileName))
	}

	location := x.storage.Location(x.fileName)
	logging.From(ctx).Info("conversation exported", "location", location, "bytes", len(artifact))
	return location, nil
}

// exportFailed keeps cause in the chain next to ErrExportFailed
func exportFailed(cause error) error {
	return fmt.Errorf("%w: %w", model.ErrExportFailed, cause)
}

// InFlight reports whether an export is running
func (x *Exporter) InFlight() bool {
	return x.busy.Load()
}

func (x *Exporter) render(ctx context.Context, entries []model.HistoryEntry) ([]byte, error) {
	body, err := x.backend.Export(ctx, entries)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	artifact, err := io.ReadAll(body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to receive artifact")
	}
	return artifact, nil
}

func (x *Exporter) deliver(ctx context.Context, artifact []byte) error {
	w, err := x.storage.Put(ctx, x.fileName)
	if err != nil {
		return goerr.Wrap(err, "failed to open destination")
	}

	if _, err := w.Write(artifact); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write artifact")
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finish artifact")
	}
	return nil
}
