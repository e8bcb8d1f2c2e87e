package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NoError(t, watcher.AddPath(t.TempDir()))
	assert.Error(t, watcher.AddPath("/non/existent/path"))
	assert.Error(t, watcher.AddPath(""))

	err = watcher.AddPath("../../../etc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traversal")
}

// collect starts watcher on root and returns a function that reports the
// batches seen so far.
func collect(t *testing.T, watcher *FileWatcher) func() [][]ChangeEvent {
	t.Helper()

	var mu sync.Mutex
	var batches [][]ChangeEvent
	watcher.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, events)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, watcher.Start(ctx))

	return func() [][]ChangeEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([][]ChangeEvent(nil), batches...)
	}
}

func TestFileWatcherDeliversBatches(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.AddRecursive(root))
	batches := collect(t, watcher)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "site.scss"), []byte("a{}"), 0o644))

	assert.Eventually(t, func() bool {
		return len(batches()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	got := batches()[0]
	require.NotEmpty(t, got)
	assert.Equal(t, filepath.Join(root, "site.scss"), got[0].Path)
}

func TestFileWatcherFiltersEvents(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(GlobFilter(root, "**/*.scss"))
	require.NoError(t, watcher.AddRecursive(root))
	batches := collect(t, watcher)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "site.scss"), []byte("a{}"), 0o644))

	assert.Eventually(t, func() bool {
		return len(batches()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	for _, batch := range batches() {
		for _, event := range batch {
			assert.Equal(t, ".scss", filepath.Ext(event.Path))
		}
	}
}

func TestFileWatcherWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.AddRecursive(root))
	batches := collect(t, watcher)
	time.Sleep(50 * time.Millisecond)

	nested := filepath.Join(root, "styles", "components")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	time.Sleep(150 * time.Millisecond)

	target := filepath.Join(nested, "_button.scss")
	require.NoError(t, os.WriteFile(target, []byte("a{}"), 0o644))

	assert.Eventually(t, func() bool {
		for _, batch := range batches() {
			for _, event := range batch {
				if event.Path == target {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDebouncer(t *testing.T) {
	debouncer := newDebouncer(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	debouncer.events <- ChangeEvent{Path: "a.scss", Type: EventTypeCreated}
	debouncer.events <- ChangeEvent{Path: "b.html", Type: EventTypeModified}
	debouncer.events <- ChangeEvent{Path: "a.scss", Type: EventTypeModified}

	select {
	case events := <-debouncer.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.scss", events[0].Path)
		assert.Equal(t, EventTypeModified, events[0].Type)
		assert.Equal(t, "b.html", events[1].Path)
	case <-time.After(time.Second):
		t.Fatal("no debounced batch")
	}

	select {
	case events := <-debouncer.output:
		t.Fatalf("unexpected second batch: %v", events)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebouncerMergesHeldBatchWhenOutputIsFull(t *testing.T) {
	debouncer := newDebouncer(time.Hour)
	defer debouncer.stop()

	for i := 0; i < cap(debouncer.output); i++ {
		debouncer.output <- []ChangeEvent{{Path: fmt.Sprintf("old/%d.scss", i)}}
	}

	debouncer.pending = append(debouncer.pending,
		ChangeEvent{Path: "a.scss", Type: EventTypeCreated},
		ChangeEvent{Path: "a.scss", Type: EventTypeModified})
	debouncer.flush()

	require.Len(t, debouncer.pending, 1)
	assert.Equal(t, EventTypeModified, debouncer.pending[0].Type)

	<-debouncer.output
	debouncer.pending = append(debouncer.pending, ChangeEvent{Path: "b.scss", Type: EventTypeModified})
	debouncer.flush()
	assert.Empty(t, debouncer.pending)

	var last []ChangeEvent
	for len(debouncer.output) > 0 {
		last = <-debouncer.output
	}
	require.Len(t, last, 2)
	assert.Equal(t, "a.scss", last[0].Path)
	assert.Equal(t, "b.scss", last[1].Path)
}

func TestDebouncerDeliversEveryChangeToABusyHandler(t *testing.T) {
	debouncer := newDebouncer(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	// Nobody reads output while the changes arrive, as when a handler is
	// stuck in a slow rebuild.
	total := cap(debouncer.output) + 5
	for i := 0; i < total; i++ {
		debouncer.events <- ChangeEvent{Path: fmt.Sprintf("styles/%d.scss", i), Type: EventTypeModified}
		time.Sleep(30 * time.Millisecond)
	}

	seen := make(map[string]bool)
	require.Eventually(t, func() bool {
		for {
			select {
			case events := <-debouncer.output:
				for _, event := range events {
					seen[event.Path] = true
				}
			default:
				return len(seen) == total
			}
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMatchAny(t *testing.T) {
	root := filepath.Join("project", "src")

	testCases := []struct {
		path     string
		patterns []string
		expected bool
	}{
		{filepath.Join(root, "styles", "site.scss"), []string{"styles/**/*.{scss,css}"}, true},
		{filepath.Join(root, "styles", "parts", "_a.scss"), []string{"styles/**/*.{scss,css}"}, true},
		{filepath.Join(root, "styles", "site.less"), []string{"styles/**/*.{scss,css}"}, false},
		{filepath.Join(root, "index.html"), []string{"styles/**/*.scss", "**/*.html"}, true},
		{filepath.Join("project", "other", "x.html"), []string{"**/*.html"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, MatchAny(root, tc.path, tc.patterns...))
		})
	}
}

func TestExcludeDirFilter(t *testing.T) {
	filter := ExcludeDirFilter(filepath.Join("src", "build"))

	assert.False(t, filter(filepath.Join("src", "build", "index.html")))
	assert.False(t, filter(filepath.Join("src", "build")))
	assert.True(t, filter(filepath.Join("src", "buildings", "index.html")))
	assert.True(t, filter(filepath.Join("src", "index.html")))
}

func TestNoEditorTempFilter(t *testing.T) {
	assert.True(t, NoEditorTempFilter("styles/site.scss"))
	assert.False(t, NoEditorTempFilter("styles/site.scss~"))
	assert.False(t, NoEditorTempFilter("styles/.site.scss.swp"))
	assert.False(t, NoEditorTempFilter("styles/.#site.scss"))
}

func TestNoGitFilter(t *testing.T) {
	assert.True(t, NoGitFilter("src/index.html"))
	assert.False(t, NoGitFilter(".git/HEAD"))
	assert.False(t, NoGitFilter("repo/.git/index"))
}
