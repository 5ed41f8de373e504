package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/docqa/pkg/adapter"
	"github.com/m-mizutani/docqa/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultEndpoint = "http://127.0.0.1:8000"
	defaultTimeout  = 5 * time.Minute
)

// config holds configuration values
type config struct {
	configFile string
	logLevel   string

	// Service
	endpoint string
	timeout  time.Duration
	headers  map[string]string

	// Export
	outputDir       string
	exportBucket    string
	storageEndpoint string

	// Events
	natsURL     string
	natsSubject string
}

// fileConfig is the layout of the optional YAML config file
type fileConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Timeout  string            `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
	Export   struct {
		Dir    string `yaml:"dir"`
		Bucket string `yaml:"bucket"`
	} `yaml:"export"`
	Events struct {
		NATSURL string `yaml:"nats_url"`
		Subject string `yaml:"subject"`
	} `yaml:"events"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("DOCQA_CONFIG"),
			Destination: &cfg.configFile,
		},
		&cli.StringFlag{
			Name:        "endpoint",
			Aliases:     []string{"e"},
			Usage:       "Base URL of the document QA service",
			Value:       defaultEndpoint,
			Sources:     cli.EnvVars("DOCQA_ENDPOINT"),
			Destination: &cfg.endpoint,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Timeout for upload, export and health requests",
			Value:       defaultTimeout,
			Sources:     cli.EnvVars("DOCQA_TIMEOUT"),
			Destination: &cfg.timeout,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "warn",
			Sources:     cli.EnvVars("DOCQA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// exportFlags returns flags selecting where exported transcripts go
func exportFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "output-dir",
			Aliases:     []string{"o"},
			Usage:       "Directory exported transcripts are written to",
			Sources:     cli.EnvVars("DOCQA_OUTPUT_DIR"),
			Destination: &cfg.outputDir,
		},
		&cli.StringFlag{
			Name:        "export-bucket",
			Usage:       "Cloud Storage bucket for exported transcripts, overrides --output-dir",
			Sources:     cli.EnvVars("DOCQA_EXPORT_BUCKET"),
			Destination: &cfg.exportBucket,
		},
		&cli.StringFlag{
			Name:        "storage-endpoint",
			Usage:       "Cloud Storage endpoint, for emulators",
			Sources:     cli.EnvVars("DOCQA_STORAGE_ENDPOINT"),
			Destination: &cfg.storageEndpoint,
		},
	}
}

// eventFlags returns flags for publishing conversation events
func eventFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "nats-url",
			Usage:       "NATS server to publish conversation events to",
			Sources:     cli.EnvVars("DOCQA_NATS_URL"),
			Destination: &cfg.natsURL,
		},
		&cli.StringFlag{
			Name:        "nats-subject",
			Usage:       "NATS subject for conversation events",
			Value:       adapter.DefaultEventSubject,
			Sources:     cli.EnvVars("DOCQA_NATS_SUBJECT"),
			Destination: &cfg.natsSubject,
		},
	}
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}
	return &fc, nil
}

// apply fills values from the config file unless the flag was given
func (cfg *config) apply(fc *fileConfig, isSet func(name string) bool) error {
	set := func(name string, dst *string, v string) {
		if v != "" && !isSet(name) {
			*dst = v
		}
	}

	set("endpoint", &cfg.endpoint, fc.Endpoint)
	set("output-dir", &cfg.outputDir, fc.Export.Dir)
	set("export-bucket", &cfg.exportBucket, fc.Export.Bucket)
	set("nats-url", &cfg.natsURL, fc.Events.NATSURL)
	set("nats-subject", &cfg.natsSubject, fc.Events.Subject)

	if fc.Timeout != "" && !isSet("timeout") {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return goerr.Wrap(err, "invalid timeout in config file", goerr.V("timeout", fc.Timeout))
		}
		cfg.timeout = d
	}

	if len(fc.Headers) > 0 {
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(fc.Headers))
		}
		for k, v := range fc.Headers {
			cfg.headers[k] = v
		}
	}
	return nil
}

// setup loads the config file and attaches the logger to ctx
func (cfg *config) setup(ctx context.Context, c *cli.Command) (context.Context, error) {
	logger := logging.New(cfg.logLevel, c.Root().ErrWriter)
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	if cfg.configFile != "" {
		fc, err := loadConfigFile(cfg.configFile)
		if err != nil {
			return ctx, err
		}
		if err := cfg.apply(fc, c.IsSet); err != nil {
			return ctx, err
		}
		logger.Debug("config file loaded", "path", cfg.configFile)
	}

	if cfg.endpoint == "" {
		return ctx, goerr.New("endpoint is required")
	}
	return ctx, nil
}

// newBackend creates a client of the document QA service
func (cfg *config) newBackend() *adapter.BackendClient {
	opts := []adapter.BackendOption{
		adapter.WithTimeout(cfg.timeout),
	}
	for k, v := range cfg.headers {
		opts = append(opts, adapter.WithHeader(k, v))
	}
	return adapter.NewBackend(cfg.endpoint, opts...)
}

// newStorage creates the export destination, a bucket if one is configured
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.exportBucket != "" {
		var opts []adapter.CloudStorageOption
		if cfg.storageEndpoint != "" {
			opts = append(opts, adapter.WithStorageEndpoint(cfg.storageEndpoint))
		}
		storage, err := adapter.NewCloudStorage(ctx, cfg.exportBucket, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		return storage, nil
	}

	dir := cfg.outputDir
	if dir == "" {
		dir = "."
	}
	storage, err := adapter.NewLocalStorage(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newPublisher returns nil when no NATS server is configured
func (cfg *config) newPublisher(ctx context.Context) (adapter.Publisher, error) {
	if cfg.natsURL == "" {
		return nil, nil
	}

	pub, err := adapter.NewNATSPublisher(ctx, cfg.natsURL, cfg.natsSubject)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create publisher")
	}
	return pub, nil
}
