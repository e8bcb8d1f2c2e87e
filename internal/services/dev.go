package services

import (
	"context"
	"os"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/server"
	"github.com/conneroisu/assetpipe/internal/session"
	"github.com/conneroisu/assetpipe/internal/styles"
	"github.com/conneroisu/assetpipe/internal/watcher"
	"github.com/conneroisu/assetpipe/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

// DevService runs the watch, rebuild and serve loop.
type DevService struct {
	config   *config.Config
	logger   logging.Logger
	compiler styles.Compiler
}

// NewDevService creates a new dev service. A nil logger discards output.
func NewDevService(cfg *config.Config, logger logging.Logger) *DevService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DevService{
		config: cfg,
		logger: logger,
	}
}

// WithCompiler replaces the configured stylesheet compiler.
func (s *DevService) WithCompiler(compiler styles.Compiler) *DevService {
	s.compiler = compiler
	return s
}

// DevOptions contains options for the dev loop
type DevOptions struct {
	// Clean removes the build root before the initial build.
	Clean bool
}

// Run builds once, then watches the source root and serves the build root
// until ctx is cancelled. Rebuild failures are shown in the browser; only
// setup and server errors are returned.
func (s *DevService) Run(ctx context.Context, opts DevOptions) error {
	cfg := s.config

	if _, err := os.Stat(cfg.Paths.Src); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidPath, "source root does not exist").
			WithContext("path", cfg.Paths.Src)
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var registry *prom.Registry
	if cfg.Metrics.Enabled {
		registry = prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	pipeline := NewPipeline(cfg, ModeDev, s.compiler, s.logger, recorder)
	if opts.Clean {
		if err := pipeline.Clean(ctx); err != nil {
			return err
		}
	}

	hub := websocket.NewWebSocketManager(&websocket.HostOriginValidator{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Allowed: cfg.Server.AllowedOrigins,
	}, s.logger, recorder)
	defer func() {
		_ = hub.Shutdown(context.Background())
	}()

	sess := session.New(pipeline, session.Options{
		SrcRoot:       cfg.Paths.Src,
		StylePatterns: []string{cfg.Styles.Watch},
		HTMLPatterns:  []string{cfg.HTML.Watch},
		CSSInjection:  cfg.Development.CSSInjection,
		ErrorOverlay:  cfg.Development.ErrorOverlay,
		Notifier:      hub,
		Logger:        s.logger,
		Metrics:       recorder,
	})
	if err := sess.Start(ctx); err != nil {
		return err
	}

	fw, err := s.newWatcher(sess)
	if err != nil {
		return err
	}
	defer fw.Stop()
	if err := fw.Start(ctx); err != nil {
		return errors.NewIOError(errors.ErrCodeWatchFailed, "failed to start file watcher", err)
	}

	srv := server.New(server.Options{
		Config:      cfg,
		Manifest:    pipeline.Manifest(),
		Hub:         hub,
		Diagnostics: sess.Errors(),
		Stats:       pipeline.Stats,
		Registry:    registry,
		Logger:      s.logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(context.Background(), "Shutting down dev server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(shutdownCtx, err, "Live reload shutdown failed")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.NewNetworkError(errors.ErrCodeServerStart, "server shutdown failed", err)
	}
	return <-errCh
}

func (s *DevService) newWatcher(sess *session.Session) (*watcher.FileWatcher, error) {
	cfg := s.config

	fw, err := watcher.NewFileWatcher(cfg.Development.Debounce, s.logger)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWatchFailed, "failed to create file watcher", err)
	}

	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.ExcludeDirFilter(cfg.Paths.Build))
	fw.AddFilter(watcher.GlobFilter(cfg.Paths.Src, cfg.Styles.Watch, cfg.HTML.Watch))
	fw.AddHandler(sess.HandleChanges)

	if err := fw.AddRecursive(cfg.Paths.Src); err != nil {
		_ = fw.Stop()
		return nil, errors.NewIOError(errors.ErrCodeWatchFailed, "failed to watch source root", err).
			WithContext("path", cfg.Paths.Src)
	}
	return fw, nil
}
