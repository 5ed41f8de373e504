package adapter

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

// Storage is the interface for where exported transcripts are delivered
type Storage interface {
	// Put returns a writer to save an artifact under key. The artifact is visible after Close.
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get reads an artifact back
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Location returns a user facing location of key
	Location(key string) string
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

type CloudStorageOption func(*cloudStorageConfig)

type cloudStorageConfig struct {
	clientOptions []option.ClientOption
}

// WithStorageEndpoint points the client to an emulator, e.g. fake-gcs-server
func WithStorageEndpoint(endpoint string) CloudStorageOption {
	return func(c *cloudStorageConfig) {
		c.clientOptions = append(c.clientOptions,
			option.WithEndpoint(endpoint),
			option.WithoutAuthentication(),
		)
	}
}

// NewCloudStorage creates a new Cloud Storage backed Storage
func NewCloudStorage(ctx context.Context, bucketName string, opts ...CloudStorageOption) (Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	var cfg cloudStorageConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := storage.NewClient(ctx, cfg.clientOptions...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentTypeOf(key)
	return writer, nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage",
			goerr.V("bucket", s.bucketName),
			goerr.V("key", key))
	}

	return reader, nil
}

func (s *storageClient) Location(key string) string {
	return "gs://" + s.bucketName + "/" + key
}

// localStorage implements Storage on a local directory
type localStorage struct {
	dir string
}

// NewLocalStorage creates a Storage that writes files into dir
func NewLocalStorage(dir string) (Storage, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create output directory", goerr.V("dir", dir))
	}
	return &localStorage{dir: dir}, nil
}

func (s *localStorage) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

func (s *localStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	dst := s.path(key)
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create temp file", goerr.V("key", key))
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, goerr.Wrap(err, "failed to set file mode", goerr.V("key", key))
	}
	return &renameOnClose{File: tmp, dst: dst}, nil
}

func (s *localStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open file", goerr.V("key", key))
	}
	return f, nil
}

func (s *localStorage) Location(key string) string {
	if abs, err := filepath.Abs(s.path(key)); err == nil {
		return abs
	}
	return s.path(key)
}

// renameOnClose moves a fully written temp file to its destination so that a
// half written artifact is never visible under the final name
type renameOnClose struct {
	*os.File
	dst    string
	failed bool
}

func (x *renameOnClose) Write(p []byte) (int, error) {
	n, err := x.File.Write(p)
	if err != nil {
		x.failed = true
	}
	return n, err
}

func (x *renameOnClose) Close() error {
	if x.failed {
		_ = x.File.Close()
		return os.Remove(x.File.Name())
	}
	if err := x.File.Close(); err != nil {
		_ = os.Remove(x.File.Name())
		return goerr.Wrap(err, "failed to close temp file", goerr.V("dst", x.dst))
	}
	if err := os.Rename(x.File.Name(), x.dst); err != nil {
		_ = os.Remove(x.File.Name())
		return goerr.Wrap(err, "failed to move file into place", goerr.V("dst", x.dst))
	}
	return nil
}

func contentTypeOf(key string) string {
	switch filepath.Ext(key) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
