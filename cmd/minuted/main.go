// Minuted is a meeting capture daemon: raw meeting audio in, moderated
// action items out.
//
// This binary starts the minuted daemon with full pipeline initialization,
// including the streaming speech-to-text connection, the gated task
// extraction buffer, the meeting backend client, the approval queue with
// its push channel, and the local HTTP control surface.
//
// Configuration is loaded from ~/.config/minuted/config.yaml with
// MINUTED_* environment overrides. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	minuted
//
//	# Configure via environment
//	MINUTED_SERVER_HTTP_PORT=9091 MINUTED_STT_API_KEY=dg_... minuted
//
//	# Use an explicit config file
//	minuted -config /etc/minuted/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/minutedhq/minuted/internal/approval"
	"github.com/minutedhq/minuted/internal/backend"
	"github.com/minutedhq/minuted/internal/capture"
	"github.com/minutedhq/minuted/internal/config"
	"github.com/minutedhq/minuted/internal/extraction"
	httpserver "github.com/minutedhq/minuted/internal/http"
	"github.com/minutedhq/minuted/internal/intent"
	"github.com/minutedhq/minuted/internal/logging"
	"github.com/minutedhq/minuted/internal/notify"
	"github.com/minutedhq/minuted/internal/stt"
	"github.com/minutedhq/minuted/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/minuted/config.yaml)")
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  minuted           Start the minuted daemon\n")
			fmt.Fprintf(os.Stderr, "  minuted version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}

	log.Println("Daemon shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("minuted\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the minuted daemon and blocks until context is cancelled.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the structured logger
//  3. Builds the capture pipeline (audio source, STT stream, extraction
//     buffer, backend recorder)
//  4. Builds the approval side (queue, push channel, syncer)
//  5. Wires the HTTP control surface
//  6. Starts the approval sync loop and marks the daemon ready
//  7. Performs graceful shutdown on context cancellation
//
// Returns nil on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	// Load configuration
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize telemetry (no-op when disabled)
	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	// Initialize logger
	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	zlog := logger.Underlying()

	logger.Info(ctx, "Starting minuted",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	// Initialize the capture pipeline and approval side
	deps, err := initDependencies(cfg, zlog)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "Pipeline initialized",
		zap.String("stt_model", cfg.STT.Model),
		zap.String("extraction_provider", cfg.Extraction.Provider),
		zap.Bool("push_channel", deps.channel != nil))

	// Create the HTTP control surface
	srv, err := httpserver.NewServer(deps.session, deps.queue, zlog,
		&httpserver.Config{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Version:         version,
			Services:        statusServices(cfg),
		},
		httpserver.WithHTTPMetrics(httpserver.NewHTTPMetrics(zlog)),
		httpserver.WithBufferStats(deps.buffer),
	)
	if err != nil {
		return fmt.Errorf("failed to create control surface: %w", err)
	}

	logger.Info(ctx, "Control surface configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/healthz", cfg.Server.Host, cfg.Server.Port)),
		zap.String("status_endpoint", "/v1/status"),
		zap.String("metrics_endpoint", "/metrics"))

	// Moderator features need an auth token. Without one the daemon runs
	// capture-only: the queue stays empty and resync is the moderator's
	// problem on another install.
	if cfg.Backend.AuthToken.IsSet() {
		if deps.channel != nil {
			if err := deps.channel.Start(); err != nil {
				logger.Warn(ctx, "Failed to start push channel; relying on periodic resync",
					zap.Error(err))
			}
		}
		if err := deps.syncer.Start(); err != nil {
			return fmt.Errorf("failed to start approval syncer: %w", err)
		}
	} else {
		logger.Info(ctx, "No backend auth token configured; running capture-only")
	}

	srv.SetReady(true)

	// Start server (blocks until context cancellation)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// dependencies holds the capture pipeline and the approval side.
type dependencies struct {
	backend *backend.Client
	stream  *stt.Client
	buffer  *extraction.Buffer
	session *capture.Session
	queue   *approval.Queue
	channel *notify.Channel // nil when no push URL is configured
	syncer  *approval.Syncer
	logger  *zap.Logger

	stopTimeout time.Duration
}

// Close stops the sync loop, the push channel, and any active capture.
func (d *dependencies) Close() {
	if d.syncer != nil {
		_ = d.syncer.Stop()
	}
	if d.channel != nil {
		d.channel.Stop()
	}
	if d.session != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), d.stopTimeout)
		defer cancel()
		if err := d.session.Stop(stopCtx); err != nil && !errors.Is(err, capture.ErrSessionIdle) {
			d.logger.Warn("failed to stop capture session", zap.Error(err))
		}
	}
}

// initTelemetry maps the telemetry config section onto the OTEL setup.
func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Protocol = cfg.Telemetry.Protocol
	tcfg.ServiceName = cfg.Telemetry.ServiceName
	tcfg.ServiceVersion = version
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.Sampling.Rate = cfg.Telemetry.SampleRate

	return telemetry.New(ctx, tcfg)
}

// initLogger initializes the structured logger, bridged to OTEL when
// telemetry is enabled.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	lcfg := logging.NewDefaultConfig()
	lcfg.Level = level
	lcfg.Format = cfg.Logging.Format
	lcfg.Redaction.Enabled = cfg.Logging.Redaction
	lcfg.Output.OTEL = tel.IsEnabled()

	return logging.NewLogger(lcfg, tel.LoggerProvider())
}

// initDependencies builds the capture pipeline and the approval side.
//
// This function:
//  1. Creates the backend client (transcript persistence and approvals)
//  2. Creates the speech-to-text stream and gated extraction buffer
//  3. Assembles the capture session around the configured audio source
//  4. Creates the approval queue, push channel, and syncer
//
// Nothing here touches the network; connections open when a session
// starts and when the push channel starts.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	backendClient, err := backend.NewClient(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		BotKey:    cfg.Backend.BotKey.Value(),
		AuthToken: cfg.Backend.AuthToken.Value(),
		OrgID:     cfg.Backend.OrgID,
		TeamID:    cfg.Backend.TeamID,
		Timeout:   cfg.Backend.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	stream := stt.NewClient(stt.Config{
		URL:               cfg.STT.URL,
		APIKey:            cfg.STT.APIKey.Value(),
		Model:             cfg.STT.Model,
		Language:          cfg.STT.Language,
		SampleRate:        cfg.STT.SampleRate,
		Channels:          cfg.STT.Channels,
		Encoding:          cfg.STT.Encoding,
		InterimResults:    cfg.STT.InterimResults,
		Punctuate:         true,
		KeepAliveInterval: cfg.STT.KeepAliveInterval,
	}, logger)

	provider, err := extraction.NewProvider(extraction.Config{
		Provider:  cfg.Extraction.Provider,
		Model:     cfg.Extraction.Model,
		APIKey:    cfg.Extraction.APIKey.Value(),
		BaseURL:   cfg.Extraction.BaseURL,
		MaxTokens: cfg.Extraction.MaxTokens,
		Timeout:   int(cfg.Extraction.Timeout.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction provider: %w", err)
	}

	buffer := extraction.NewBuffer(provider, intent.NewGate(intent.Config{}), logger,
		extraction.WithMinInterval(cfg.Extraction.MinInterval),
		extraction.WithMetrics(extraction.NewMetrics(logger)),
	)

	if cfg.Capture.AudioPath == "" {
		logger.Warn("No capture audio path configured; session start will fail until capture.audio_path is set")
	}
	source := capture.NewPipeSource(cfg.Capture.AudioPath, cfg.Capture.FrameBytes)

	sessionOpts := []capture.Option{
		capture.WithMetrics(capture.NewMetrics(logger)),
		capture.WithDrainTimeout(cfg.Capture.DrainTimeout),
	}
	if cfg.Capture.CompleteOnStop {
		sessionOpts = append(sessionOpts, capture.WithCompleteOnStop(cfg.Capture.GenerateSummary))
	}
	session := capture.New(capture.Deps{
		Source:   source,
		Stream:   stream,
		Buffer:   buffer,
		Recorder: backendClient,
		Logger:   logger,
	}, sessionOpts...)

	queue := approval.NewQueue(backendClient, logger,
		approval.WithSnoozeWindow(cfg.Approval.SnoozeWindow),
		approval.WithQueueMetrics(approval.NewMetrics(logger)),
	)

	// A nil *notify.Channel must not reach the syncer as a non-nil
	// interface value.
	var channel *notify.Channel
	var sub approval.Subscriber
	if cfg.Backend.PushURL != "" {
		channel = notify.NewChannel(notify.Config{
			URL:       cfg.Backend.PushURL,
			AuthToken: cfg.Backend.AuthToken.Value(),
		}, logger)
		sub = channel
	}

	syncer, err := approval.NewSyncer(queue, sub, logger,
		approval.WithInterval(cfg.Approval.SyncInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to create approval syncer: %w", err)
	}

	return &dependencies{
		backend:     backendClient,
		stream:      stream,
		buffer:      buffer,
		session:     session,
		queue:       queue,
		channel:     channel,
		syncer:      syncer,
		logger:      logger,
		stopTimeout: cfg.Server.ShutdownTimeout,
	}, nil
}

// statusServices names the configured providers for GET /v1/status.
func statusServices(cfg *config.Config) map[string]string {
	services := map[string]string{
		"stt":        cfg.STT.Model,
		"extraction": cfg.Extraction.Provider,
	}
	if cfg.Extraction.Provider == "" {
		services["extraction"] = "disabled"
	}
	if cfg.Backend.PushURL != "" {
		services["push"] = "websocket"
	} else {
		services["push"] = "resync-only"
	}
	return services
}
