// Package session drives the dev loop: it classifies debounced file changes,
// runs the matching rebuild and tells connected browsers what changed.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/conneroisu/assetpipe/internal/build"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/watcher"
)

// State is what the session is doing right now.
type State int

const (
	Idle State = iota
	RebuildingStyles
	RebuildingTemplates
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RebuildingStyles:
		return "rebuilding-styles"
	case RebuildingTemplates:
		return "rebuilding-templates"
	default:
		return "unknown"
	}
}

// ChangeKind classifies a changed path.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeTemplates
	ChangeStyles
)

// Builder is the part of the pipeline the session drives.
type Builder interface {
	BuildStyles(ctx context.Context) (*build.StylesResult, error)
	RenderTemplates(ctx context.Context) (*build.TemplatesResult, error)
	StyleHrefs() []string
}

// Notifier delivers rebuild outcomes to browsers.
type Notifier interface {
	NotifyCSS(hrefs []string)
	NotifyReload()
	NotifyError(diagnostics []errors.BuildError, overlay string)
}

// Options configures a Session. Patterns are doublestar globs relative to
// SrcRoot.
type Options struct {
	SrcRoot       string
	StylePatterns []string
	HTMLPatterns  []string
	CSSInjection  bool
	ErrorOverlay  bool
	Notifier      Notifier
	Logger        logging.Logger
	Metrics       metrics.Recorder
}

// Session is the dev loop state machine. HandleChanges is meant to be
// registered as the watcher's only rebuilding handler; the watcher calls it
// serially, so at most one rebuild is ever in flight.
type Session struct {
	builder       Builder
	srcRoot       string
	stylePatterns []string
	htmlPatterns  []string
	cssInjection  bool
	errorOverlay  bool
	notifier      Notifier
	logger        logging.Logger
	metrics       metrics.Recorder
	collector     *errors.ErrorCollector

	state State
	mutex sync.RWMutex
}

type noopNotifier struct{}

func (noopNotifier) NotifyCSS([]string)                      {}
func (noopNotifier) NotifyReload()                           {}
func (noopNotifier) NotifyError([]errors.BuildError, string) {}

// New creates an idle session around builder.
func New(builder Builder, opts Options) *Session {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &Session{
		builder:       builder,
		srcRoot:       opts.SrcRoot,
		stylePatterns: opts.StylePatterns,
		htmlPatterns:  opts.HTMLPatterns,
		cssInjection:  opts.CSSInjection,
		errorOverlay:  opts.ErrorOverlay,
		notifier:      notifier,
		logger:        logger.WithComponent("session"),
		metrics:       recorder,
		collector:     errors.NewErrorCollector(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mutex.Lock()
	s.state = state
	s.mutex.Unlock()
}

// Errors returns the diagnostics of the last failed rebuild. It is empty once
// a rebuild succeeds.
func (s *Session) Errors() *errors.ErrorCollector {
	return s.collector
}

// Classify reports which rebuild a change to path needs.
func (s *Session) Classify(path string) ChangeKind {
	switch {
	case watcher.MatchAny(s.srcRoot, path, s.stylePatterns...):
		return ChangeStyles
	case watcher.MatchAny(s.srcRoot, path, s.htmlPatterns...):
		return ChangeTemplates
	default:
		return ChangeNone
	}
}

// Start runs the initial styles build and template render. Failures are
// logged and kept for the overlay; they never stop the session.
func (s *Session) Start(ctx context.Context) error {
	s.rebuildStyles(ctx, false)
	return ctx.Err()
}

// HandleChanges rebuilds for a debounced batch of changes. A batch with any
// stylesheet change runs the styles cycle, which also re-renders templates.
// Rebuild failures are reported to clients rather than returned.
func (s *Session) HandleChanges(ctx context.Context, events []watcher.ChangeEvent) error {
	kind := ChangeNone
	for _, event := range events {
		if k := s.Classify(event.Path); k > kind {
			kind = k
		}
	}

	switch kind {
	case ChangeStyles:
		s.rebuildStyles(ctx, true)
	case ChangeTemplates:
		s.rebuildTemplates(ctx)
	}

	return nil
}

func (s *Session) rebuildStyles(ctx context.Context, notify bool) {
	s.setState(RebuildingStyles)
	defer s.setState(Idle)

	cycle := s.startCycle(ctx, "styles")
	wasFailing := s.collector.HasErrors()

	if _, err := s.builder.BuildStyles(ctx); err != nil {
		s.fail(ctx, cycle, err, notify)
		return
	}
	if _, err := s.builder.RenderTemplates(ctx); err != nil {
		s.fail(ctx, cycle, err, notify)
		return
	}

	s.collector.Clear()
	duration := cycle.End(ctx)
	s.metrics.IncRebuild("styles")

	if !notify {
		return
	}
	// A page showing the overlay needs a full reload to drop it.
	if s.cssInjection && !wasFailing {
		hrefs := s.builder.StyleHrefs()
		s.logger.Debug(ctx, "Injecting stylesheets", "hrefs", hrefs, "duration_ms", duration.Milliseconds())
		s.notifier.NotifyCSS(hrefs)
		return
	}
	s.notifier.NotifyReload()
}

func (s *Session) rebuildTemplates(ctx context.Context) {
	s.setState(RebuildingTemplates)
	defer s.setState(Idle)

	cycle := s.startCycle(ctx, "templates")

	if _, err := s.builder.RenderTemplates(ctx); err != nil {
		s.fail(ctx, cycle, err, true)
		return
	}

	s.collector.Clear()
	cycle.End(ctx)
	s.metrics.IncRebuild("templates")
	s.notifier.NotifyReload()
}

func (s *Session) startCycle(ctx context.Context, kind string) *logging.PerfLogger {
	logger := s.logger.With("cycle_id", uuid.NewString(), "kind", kind)
	logger.Debug(ctx, "Rebuild started")
	return logging.StartOperation(logger, "rebuild")
}

// fail records err for the overlay. The pipeline has already logged the stage
// failure, so only a warning with the cycle id is added here.
func (s *Session) fail(ctx context.Context, cycle *logging.PerfLogger, err error, notify bool) {
	s.collector.Replace(err)
	s.metrics.IncRebuild("failed")
	cycle.Warn(ctx, err, "Rebuild failed",
		"files", s.collector.Files(),
		"duration_ms", cycle.Elapsed().Milliseconds())

	if !notify {
		return
	}

	var overlay string
	if s.errorOverlay {
		overlay = s.collector.OverlayHTML(ctx)
	}
	s.notifier.NotifyError(s.collector.GetErrors(), overlay)
}
