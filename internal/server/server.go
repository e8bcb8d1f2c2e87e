// Package server is the dev HTTP server. It serves the build root, injects
// the live reload client into HTML pages and exposes the manifest, health and
// metrics endpoints.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/conneroisu/assetpipe/internal/build"
	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/manifest"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/version"
)

// Routes served next to the build root.
const (
	LiveReloadPath = "/__assetpipe/livereload"
	ManifestPath   = "/__assetpipe/manifest"
	HealthPath     = "/__assetpipe/health"
	MetricsPath    = "/metrics"
)

// Hub is the live reload endpoint.
type Hub interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	GetConnectedClients() int
}

// Diagnostics is the source of the error overlay.
type Diagnostics interface {
	HasErrors() bool
	OverlayHTML(ctx context.Context) string
}

// Options configures a Server. Config and Manifest are required; everything
// else may be nil.
type Options struct {
	Config      *config.Config
	Manifest    *manifest.Manifest
	Hub         Hub
	Diagnostics Diagnostics
	Stats       func() build.BuildMetrics
	Registry    *prom.Registry
	Logger      logging.Logger
}

// Server serves a build root for development.
type Server struct {
	config      *config.Config
	root        http.Dir
	files       http.Handler
	manifest    *manifest.Manifest
	hub         Hub
	diagnostics Diagnostics
	stats       func() build.BuildMetrics
	registry    *prom.Registry
	logger      logging.Logger
	script      string

	httpServer  *http.Server
	serverMutex sync.RWMutex
}

// New creates a server. It does not listen until Start is called.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	m := opts.Manifest
	if m == nil {
		m = manifest.New()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	root := http.Dir(cfg.Paths.Build)

	s := &Server{
		config:      cfg,
		root:        root,
		files:       http.FileServer(root),
		manifest:    m,
		hub:         opts.Hub,
		diagnostics: opts.Diagnostics,
		stats:       opts.Stats,
		registry:    opts.Registry,
		logger:      logger.WithComponent("server"),
	}
	if s.hub != nil && cfg.Development.HotReload {
		s.script = LiveReloadScript(LiveReloadPath, cfg.Styles.Build)
	}

	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
}

// URL returns the address browsers should open.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Handler returns the server's routes wrapped in its middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.hub != nil {
		mux.HandleFunc(LiveReloadPath, s.hub.HandleWebSocket)
	}
	mux.HandleFunc(ManifestPath, s.handleManifest)
	mux.HandleFunc(HealthPath, s.handleHealth)
	if s.config.Metrics.Enabled {
		mux.Handle(MetricsPath, metrics.HTTPHandler(s.registry))
	}
	mux.HandleFunc("/", s.handleStatic)

	return s.addMiddleware(mux)
}

// Start listens and serves until Shutdown is called or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	if s.config.Server.Open {
		go s.openBrowser(s.URL())
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	s.logger.Info(ctx, "Dev server listening", "url", s.URL())

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.NewNetworkError(errors.ErrCodeServerStart, "server error", err).
			WithContext("addr", server.Addr)
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMutex.RLock()
	server := s.httpServer
	s.serverMutex.RUnlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// handleStatic serves files from the build root. HTML pages are read and
// served with the live reload client and, after a failed rebuild, the error
// overlay.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}
	if path.Ext(name) != ".html" {
		s.files.ServeHTTP(w, r)
		return
	}

	f, err := s.root.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	page, err := io.ReadAll(f)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Failed to read page", "path", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	page = InjectBeforeBody(page, s.snippet(r.Context()))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(page))
}

func (s *Server) snippet(ctx context.Context) string {
	var sb strings.Builder
	if s.config.Development.ErrorOverlay && s.diagnostics != nil && s.diagnostics.HasErrors() {
		sb.WriteString(s.diagnostics.OverlayHTML(ctx))
	}
	sb.WriteString(s.script)
	return sb.String()
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, r, s.manifest.Snapshot())
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	if s.diagnostics != nil && s.diagnostics.HasErrors() {
		status = "error"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
	}
	if s.stats != nil {
		stats := s.stats()
		health["build"] = stats
		health["success_rate"] = stats.GetSuccessRate()
	}
	if s.hub != nil {
		health["clients"] = s.hub.GetConnectedClients()
	}

	s.writeJSON(w, r, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}

func (s *Server) openBrowser(target string) {
	time.Sleep(100 * time.Millisecond)

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		s.logger.Warn(context.Background(), err, "Refusing to open browser", "url", target)
		return
	}

	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", u.String()).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", u.String()).Start()
	case "darwin":
		err = exec.Command("open", u.String()).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to open browser", "url", target)
	}
}
