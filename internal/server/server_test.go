package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/build"
	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/manifest"
	"github.com/conneroisu/assetpipe/internal/metrics"
)

func TestInjectBeforeBody(t *testing.T) {
	const snippet = "<script>x</script>"

	testCases := []struct {
		name     string
		page     string
		expected string
	}{
		{
			name:     "before body end",
			page:     "<html><body><p>hi</p></body></html>",
			expected: "<html><body><p>hi</p><script>x</script></body></html>",
		},
		{
			name:     "uppercase tag",
			page:     "<BODY>a</BODY>",
			expected: "<BODY>a<script>x</script></BODY>",
		},
		{
			name:     "no body appends",
			page:     "<p>fragment</p>",
			expected: "<p>fragment</p><script>x</script>",
		},
		{
			name:     "ignores comments",
			page:     "<body><!-- </body> --></body>",
			expected: "<body><!-- </body> --><script>x</script></body>",
		},
		{
			name:     "ignores script text",
			page:     "<body><script>var s = '</body>';</script></body>",
			expected: "<body><script>var s = '</body>';</script><script>x</script></body>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, string(InjectBeforeBody([]byte(tc.page), snippet)))
		})
	}

	assert.Equal(t, "<body></body>", string(InjectBeforeBody([]byte("<body></body>"), "")))
}

func TestLiveReloadScript(t *testing.T) {
	script := LiveReloadScript(LiveReloadPath, "assets/css/")

	assert.True(t, strings.HasPrefix(script, "<script data-assetpipe>"))
	assert.Contains(t, script, `var endpoint = "/__assetpipe/livereload";`)
	assert.Contains(t, script, `var base = "/assets/css/";`)
	assert.Contains(t, script, `var overlayId = "`+errors.OverlayID+`";`)
	assert.NotContains(t, script, "%!")
}

type fakeHub struct{}

func (fakeHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, "hub")
}

func (fakeHub) GetConnectedClients() int { return 2 }

func newSite(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.Build = t.TempDir()

	files := map[string]string{
		"index.html":            "<html><body><h1>home</h1></body></html>",
		"blog/index.html":       "<body>blog</body>",
		"assets/css/site.css":   ".a{color:red}",
		"assets/css/unused.css": ".b{}",
	}
	for rel, content := range files {
		path := filepath.Join(cfg.Paths.Build, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return cfg
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServeInjectsLiveReload(t *testing.T) {
	cfg := newSite(t)
	handler := New(Options{Config: cfg, Hub: fakeHub{}}).Handler()

	rec := get(t, handler, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "<html><body><h1>home</h1><script data-assetpipe>"))
	assert.True(t, strings.HasSuffix(body, "</script></body></html>"))

	nested := get(t, handler, "/blog/")
	require.Equal(t, http.StatusOK, nested.Code)
	assert.Contains(t, nested.Body.String(), "blog<script data-assetpipe>")

	direct := get(t, handler, "/blog/index.html")
	require.Equal(t, http.StatusOK, direct.Code)
	assert.Contains(t, direct.Body.String(), "data-assetpipe")
}

func TestServeStaticFilesUnchanged(t *testing.T) {
	cfg := newSite(t)
	handler := New(Options{Config: cfg, Hub: fakeHub{}}).Handler()

	rec := get(t, handler, "/assets/css/site.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ".a{color:red}", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
}

func TestServeMissingAndTraversal(t *testing.T) {
	cfg := newSite(t)
	srv := New(Options{Config: cfg})
	handler := srv.Handler()

	assert.Equal(t, http.StatusNotFound, get(t, handler, "/missing.html").Code)

	traversal := httptest.NewRecorder()
	srv.handleStatic(traversal, httptest.NewRequest(http.MethodGet, "/../../etc/passwd.html", nil))
	assert.Equal(t, http.StatusNotFound, traversal.Code)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeWithoutHotReload(t *testing.T) {
	cfg := newSite(t)
	cfg.Development.HotReload = false
	handler := New(Options{Config: cfg, Hub: fakeHub{}}).Handler()

	assert.Equal(t, "<html><body><h1>home</h1></body></html>", get(t, handler, "/").Body.String())
}

func TestServeErrorOverlay(t *testing.T) {
	cfg := newSite(t)
	collector := errors.NewErrorCollector()
	handler := New(Options{Config: cfg, Hub: fakeHub{}, Diagnostics: collector}).Handler()

	marker := `id="` + errors.OverlayID + `"`
	assert.NotContains(t, get(t, handler, "/").Body.String(), marker)

	collector.Add(errors.BuildError{File: "site.scss", Line: 4, Message: "expected \";\""})
	body := get(t, handler, "/").Body.String()
	assert.Contains(t, body, marker)
	assert.Less(t, strings.Index(body, marker), strings.Index(body, "</body>"))

	cfg.Development.ErrorOverlay = false
	off := New(Options{Config: cfg, Hub: fakeHub{}, Diagnostics: collector}).Handler()
	assert.NotContains(t, get(t, off, "/").Body.String(), marker)
}

func TestLiveReloadRoute(t *testing.T) {
	cfg := newSite(t)
	handler := New(Options{Config: cfg, Hub: fakeHub{}}).Handler()

	assert.Equal(t, "hub", get(t, handler, LiveReloadPath).Body.String())
}

func TestManifestRoute(t *testing.T) {
	cfg := newSite(t)
	m := manifest.New()
	m.Record("styles", "site.1234abcd.css")
	handler := New(Options{Config: cfg, Manifest: m}).Handler()

	rec := get(t, handler, ManifestPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snapshot map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, map[string][]string{"styles": {"site.1234abcd.css"}}, snapshot)
}

func TestHealthRoute(t *testing.T) {
	cfg := newSite(t)
	stats := build.NewBuildMetrics()
	stats.RecordBuild(time.Millisecond, nil)
	stats.RecordBuild(time.Millisecond, os.ErrNotExist)
	stats.RecordBuild(time.Millisecond, nil)
	stats.RecordBuild(time.Millisecond, nil)
	collector := errors.NewErrorCollector()

	handler := New(Options{
		Config:      cfg,
		Hub:         fakeHub{},
		Diagnostics: collector,
		Stats:       stats.GetSnapshot,
	}).Handler()

	var health struct {
		Status      string             `json:"status"`
		Clients     int                `json:"clients"`
		SuccessRate float64            `json:"success_rate"`
		Build       build.BuildMetrics `json:"build"`
	}
	require.NoError(t, json.Unmarshal(get(t, handler, HealthPath).Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.Clients)
	assert.Equal(t, int64(3), health.Build.SuccessfulBuilds)
	assert.Equal(t, 75.0, health.SuccessRate)

	collector.AddError(errors.ErrCleanFailed("build", os.ErrPermission))
	health.Status = ""
	require.NoError(t, json.Unmarshal(get(t, handler, HealthPath).Body.Bytes(), &health))
	assert.Equal(t, "error", health.Status)
}

func TestMetricsRoute(t *testing.T) {
	cfg := newSite(t)
	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	recorder.IncRebuild("templates")

	handler := New(Options{Config: cfg, Registry: reg}).Handler()
	rec := get(t, handler, MetricsPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `assetpipe_dev_rebuilds_total{kind="templates"} 1`)

	cfg.Metrics.Enabled = false
	disabled := New(Options{Config: cfg, Registry: reg}).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, disabled, MetricsPath).Code)
}

func TestServerStartAndShutdown(t *testing.T) {
	cfg := newSite(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	srv := New(Options{Config: cfg})

	assert.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, "http://127.0.0.1:0", srv.URL())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		srv.serverMutex.RLock()
		defer srv.serverMutex.RUnlock()
		return srv.httpServer != nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Shutdown(context.Background()))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestServerStopsWithContext(t *testing.T) {
	cfg := newSite(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	srv := New(Options{Config: cfg})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
