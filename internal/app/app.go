package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"fun-with-ai/internal/config"
	"fun-with-ai/internal/controller"
	"fun-with-ai/internal/history"
	"fun-with-ai/internal/llm"
	"fun-with-ai/internal/metrics"
	"fun-with-ai/internal/storage"
)

// App holds the collaborators shared by every presentation layer.
type App struct {
	Config   *config.Config
	Client   llm.CompletionClient
	Store    storage.KV
	Recorder storage.Recorder
	Metrics  *metrics.Submissions

	closers []func()
}

// Option adjusts how New wires the App.
type Option func(*options)

type options struct {
	telemetryOut io.Writer
}

// WithTelemetryWriter sends exported spans and metrics to w instead of stdout.
func WithTelemetryWriter(w io.Writer) Option {
	return func(o *options) { o.telemetryOut = w }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	client, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider))
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return NewWithClient(ctx, cfg, client, opts...)
}

// NewWithClient wires everything except the completion backend.
func NewWithClient(ctx context.Context, cfg *config.Config, client llm.CompletionClient, opts ...Option) (*App, error) {
	o := options{telemetryOut: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Config: cfg, Client: client}

	switch cfg.StoreBackend {
	case config.StoreMemory:
		a.Store = storage.NewMemoryStore(cfg.StoreQuotaBytes)
	case config.StoreFile:
		fs, err := storage.NewFileStore(cfg.StoreFilePath, cfg.StoreQuotaBytes)
		if err != nil {
			return nil, err
		}
		a.Store = fs
	case config.StorePostgres:
		ps, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.StoreQuotaBytes)
		if err != nil {
			return nil, err
		}
		a.Store = ps
		a.closers = append(a.closers, ps.Close)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}

	if cfg.JournalFilePath != "" {
		rec, err := storage.NewFileRecorder(cfg.JournalFilePath)
		if err != nil {
			log.Printf("failed to init interaction journal: %v", err)
		} else {
			a.Recorder = rec
		}
	}

	if err := a.initTelemetry(cfg, o.telemetryOut); err != nil {
		a.Close()
		return nil, err
	}
	m, err := metrics.NewSubmissions()
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	a.Metrics = m

	log.Printf("app ready [provider=%s, store=%s, default engine=%s]", cfg.LLMProvider, cfg.StoreBackend, cfg.DefaultEngine)
	return a, nil
}

// initTelemetry installs the stdout exporters the config asks for. Instruments
// created afterwards record into them.
func (a *App) initTelemetry(cfg *config.Config, w io.Writer) error {
	if cfg.TraceStdout {
		shutdown, err := metrics.InitTracer(w)
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		a.addShutdown("traces", shutdown)
	}
	if cfg.MetricsStdout {
		shutdown, err := metrics.InitMeter(w, cfg.MetricsInterval)
		if err != nil {
			return fmt.Errorf("failed to init metrics export: %w", err)
		}
		a.addShutdown("metrics", shutdown)
	}
	return nil
}

func (a *App) addShutdown(what string, shutdown func(context.Context) error) {
	a.closers = append(a.closers, func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("failed to flush %s: %v", what, err)
		}
	})
}

// NewController builds a controller whose history lives under key.
func (a *App) NewController(key string, notifier controller.Notifier) *controller.Controller {
	opts := controller.Options{
		DefaultEngine:  a.Config.DefaultEngine,
		RequestTimeout: a.Config.RequestTimeout,
		Scope:          key,
		Notifier:       notifier,
		Recorder:       a.Recorder,
		Metrics:        a.Metrics,
	}
	return controller.New(a.Client, history.NewStore(a.Store, key), opts)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
