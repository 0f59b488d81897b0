package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/adapter/a11y"
	"github.com/c360studio/uatgate/adapter/apicheck"
	"github.com/c360studio/uatgate/adapter/browser"
	"github.com/c360studio/uatgate/adapter/virtual"
	"github.com/c360studio/uatgate/adapter/visual"
	"github.com/c360studio/uatgate/artifact"
	"github.com/c360studio/uatgate/config"
	"github.com/c360studio/uatgate/events"
	"github.com/c360studio/uatgate/metrics"
	"github.com/c360studio/uatgate/orchestrator"
	"github.com/c360studio/uatgate/storage"
)

// eventStream is the JetStream stream holding durable card events.
const eventStream = "UAT"

// globalOptions carry the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dataDir    string
	logLevel   string
}

// gateway boots the gateway for one subcommand. Long-running commands get
// the embedded NATS server when the config asks for it; one-shot commands
// only connect when an external URL is configured.
func (o *globalOptions) gateway(ctx context.Context, longRunning bool) (*Gateway, error) {
	logger := newLogger(o.logLevel)
	cfg, err := o.loadConfig(logger)
	if err != nil {
		return nil, err
	}
	return openGateway(ctx, cfg, logger, longRunning)
}

func (o *globalOptions) loadConfig(logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.NewLoader(logger).Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		rebasePaths(cfg, o.dataDir)
	}
	return cfg, nil
}

// rebasePaths moves the data directory and every derived path that is still
// at its default under the new root. Explicitly configured paths stay put.
func rebasePaths(cfg *config.Config, dataDir string) {
	def := config.DefaultConfig()
	if cfg.Paths.Artifacts == def.Paths.Artifacts {
		cfg.Paths.Artifacts = filepath.Join(dataDir, "artifacts")
	}
	if cfg.Paths.Baselines == def.Paths.Baselines {
		cfg.Paths.Baselines = filepath.Join(dataDir, "baselines")
	}
	if cfg.Paths.DependencyMap == def.Paths.DependencyMap {
		cfg.Paths.DependencyMap = filepath.Join(dataDir, "depmap.yaml")
	}
	cfg.Paths.DataDir = dataDir
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Gateway wires the orchestration service to its stores, adapters and the
// optional NATS connection.
type Gateway struct {
	Config  *config.Config
	Logger  *slog.Logger
	Service *orchestrator.Service
	Metrics *metrics.Metrics

	store     storage.Store
	artifacts *artifact.Store

	embeddedServer *server.Server
	natsClient     *natsclient.Client
}

// openGateway assembles a Gateway from loaded configuration.
func openGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger, longRunning bool) (*Gateway, error) {
	g := &Gateway{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.New(),
		artifacts: artifact.NewStore(cfg.Paths.Artifacts, logger),
	}

	if cfg.NATS.URL != "" || (cfg.NATS.Embedded && longRunning) {
		if err := g.startNATS(ctx); err != nil {
			return nil, err
		}
	}

	store, err := g.openStore(ctx)
	if err != nil {
		g.Shutdown(ctx)
		return nil, err
	}
	g.store = store

	emitter := events.NewEmitter(g.natsClient, logger)
	g.Service = orchestrator.NewService(cfg, store, g.artifacts, defaultAdapters(logger), emitter, g.Metrics, logger)
	return g, nil
}

// openStore picks the state backend: JetStream KV against an external NATS
// deployment, files under the data dir otherwise. One-shot commands never
// connect to the embedded server, so embedded mode keeps state in files and
// uses the server for eventing only.
func (g *Gateway) openStore(ctx context.Context) (storage.Store, error) {
	if g.Config.NATS.URL != "" && g.natsClient != nil {
		js, err := g.natsClient.JetStream()
		if err != nil {
			return nil, fmt.Errorf("get jetstream: %w", err)
		}
		store, err := storage.NewKVStore(ctx, js)
		if err != nil {
			return nil, fmt.Errorf("open kv store: %w", err)
		}
		g.Logger.Info("state store ready", "backend", "jetstream-kv")
		return store, nil
	}

	store, err := storage.NewFileStore(filepath.Join(g.Config.Paths.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return store, nil
}

// defaultAdapters is the standard adapter set: real page interaction,
// virtualized dependencies, API contract checks, accessibility and visual
// regression.
func defaultAdapters(logger *slog.Logger) []adapter.Adapter {
	return []adapter.Adapter{
		browser.New(logger),
		virtual.New(logger),
		apicheck.New(logger),
		a11y.New(nil, logger),
		visual.New(nil, logger),
	}
}

// startNATS starts the embedded server when no external URL is configured,
// then connects the client and makes sure the event stream exists.
func (g *Gateway) startNATS(ctx context.Context) error {
	url := g.Config.NATS.URL
	if url == "" {
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			StoreDir:  filepath.Join(g.Config.Paths.DataDir, "nats"),
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}

		g.embeddedServer = ns
		url = ns.ClientURL()
	}

	client, err := natsclient.NewClient(url,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
	)
	if err != nil {
		g.stopEmbedded()
		return fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		g.stopEmbedded()
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		client.Close(ctx)
		g.stopEmbedded()
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	g.natsClient = client

	if err := g.ensureEventStream(ctx); err != nil {
		// Card publishes will fail and be logged per event; progress events
		// use core NATS and keep working.
		g.Logger.Warn("event stream unavailable", "error", err)
	}

	g.Logger.Info("connected to NATS", "url", url)
	return nil
}

// ensureEventStream creates the durable card event stream if it does not
// exist yet.
func (g *Gateway) ensureEventStream(ctx context.Context) error {
	js, err := g.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     eventStream,
		Subjects: []string{"uat.events.>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("ensure %s stream: %w", eventStream, err)
	}
	return nil
}

func (g *Gateway) stopEmbedded() {
	if g.embeddedServer != nil {
		g.embeddedServer.Shutdown()
		g.embeddedServer = nil
	}
}

// Shutdown releases the NATS connection and the embedded server.
func (g *Gateway) Shutdown(ctx context.Context) {
	if g.natsClient != nil {
		g.natsClient.Close(ctx)
		g.natsClient = nil
	}
	if g.embeddedServer != nil {
		g.embeddedServer.Shutdown()
		g.embeddedServer.WaitForShutdown()
		g.embeddedServer = nil
	}
}
