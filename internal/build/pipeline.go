// Package build runs the asset pipeline: clean the build root, compile and
// optimise stylesheets into content-hashed files, record them in the
// manifest and render HTML templates with the resulting <link> tags.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/manifest"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/styles"
)

// Options configures a Pipeline. Config and Compiler are required.
type Options struct {
	Config   *config.Config
	Manifest *manifest.Manifest
	Compiler styles.Compiler

	// Transforms run on every compiled stylesheet. Nil skips optimisation.
	Transforms  styles.Chain
	Logger      logging.Logger
	Metrics     metrics.Recorder
	Concurrency int
}

// Pipeline is the build orchestrator. Its stages may be called on their own
// or together through Build; calls are serialised.
type Pipeline struct {
	srcRoot     string
	buildRoot   string
	stylesPath  string
	stylesGlob  string
	htmlGlob    string
	group       string
	hashFormat  string
	manifest    *manifest.Manifest
	compiler    styles.Compiler
	transforms  styles.Chain
	logger      logging.Logger
	metrics     metrics.Recorder
	stats       *BuildMetrics
	concurrency int
	mutex       sync.Mutex
}

// StyleOutput describes one written stylesheet.
type StyleOutput struct {
	Entry string `json:"entry"`
	File  string `json:"file"`
	Path  string `json:"path"`
	Size  int    `json:"size"`
}

// StylesResult is the outcome of BuildStyles.
type StylesResult struct {
	Outputs  []StyleOutput
	Removed  []string
	Duration time.Duration
}

// TemplatesResult is the outcome of RenderTemplates.
type TemplatesResult struct {
	Pages    []string
	Duration time.Duration
}

// Result is the outcome of a full Build.
type Result struct {
	Styles    *StylesResult
	Templates *TemplatesResult
	Duration  time.Duration
}

// TemplateData is the data HTML templates are executed with.
type TemplateData struct {
	// Styles is the rendered <link> markup for the styles group.
	Styles string
	// StyleHrefs are the public paths of the stylesheets, in order.
	StyleHrefs []string
}

// New creates a pipeline. A nil manifest gets a fresh one; a nil logger or
// recorder disables logging or metrics.
func New(opts Options) *Pipeline {
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

	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	return &Pipeline{
		srcRoot:     cfg.Paths.Src,
		buildRoot:   cfg.Paths.Build,
		stylesPath:  cfg.Styles.Build,
		stylesGlob:  cfg.Styles.Src,
		htmlGlob:    cfg.HTML.Src,
		group:       cfg.Styles.Group,
		hashFormat:  cfg.Styles.HashFormat,
		manifest:    m,
		compiler:    opts.Compiler,
		transforms:  opts.Transforms,
		logger:      logger.WithComponent("pipeline"),
		metrics:     recorder,
		stats:       NewBuildMetrics(),
		concurrency: concurrency,
	}
}

// Manifest returns the manifest the pipeline records into.
func (p *Pipeline) Manifest() *manifest.Manifest {
	return p.manifest
}

// Stats returns a snapshot of the pipeline's run counters.
func (p *Pipeline) Stats() BuildMetrics {
	return p.stats.GetSnapshot()
}

// StyleHrefs returns the public paths of the stylesheets currently recorded.
func (p *Pipeline) StyleHrefs() []string {
	entries, _ := p.manifest.Lookup(p.group)
	return manifest.Hrefs(p.stylesPath, entries)
}

// Clean removes the build root.
func (p *Pipeline) Clean(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	start := time.Now()
	err := p.stage(ctx, metrics.StageClean, p.clean)
	p.stats.RecordBuild(time.Since(start), err)
	return err
}

// BuildStyles compiles every style entry point and records the hashed outputs
// under the styles group. Entries are compiled before anything is written, so
// a failure leaves the manifest and the previous outputs in place.
func (p *Pipeline) BuildStyles(ctx context.Context) (*StylesResult, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	start := time.Now()
	var result *StylesResult
	err := p.stage(ctx, metrics.StageStyles, func() error {
		var err error
		result, err = p.buildStyles(ctx)
		return err
	})
	p.stats.RecordBuild(time.Since(start), err)
	return result, err
}

// RenderTemplates executes every HTML source with the current stylesheet
// links and writes the results under the build root.
func (p *Pipeline) RenderTemplates(ctx context.Context) (*TemplatesResult, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	start := time.Now()
	var result *TemplatesResult
	err := p.stage(ctx, metrics.StageTemplates, func() error {
		var err error
		result, err = p.renderTemplates(ctx)
		return err
	})
	p.stats.RecordBuild(time.Since(start), err)
	return result, err
}

// Build runs clean, styles and templates in order and stops at the first
// failure.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	start := time.Now()
	result := &Result{}

	err := p.stage(ctx, metrics.StageClean, p.clean)
	if err == nil {
		err = p.stage(ctx, metrics.StageStyles, func() error {
			var err error
			result.Styles, err = p.buildStyles(ctx)
			return err
		})
	}
	if err == nil {
		err = p.stage(ctx, metrics.StageTemplates, func() error {
			var err error
			result.Templates, err = p.renderTemplates(ctx)
			return err
		})
	}

	result.Duration = time.Since(start)
	p.metrics.ObserveBuildDuration(result.Duration)
	p.metrics.IncBuildOutcome(metrics.ResultFor(err, ctx.Err() != nil))
	p.stats.RecordBuild(result.Duration, err)

	return result, err
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func() error) error {
	op := logging.StartOperation(p.logger, name)

	err := fn()

	var duration time.Duration
	if err != nil {
		duration = op.EndWithError(ctx, err)
	} else {
		duration = op.End(ctx)
	}

	p.metrics.ObserveStageDuration(name, duration)
	p.metrics.IncStageResult(name, metrics.ResultFor(err, ctx.Err() != nil))
	return err
}

func (p *Pipeline) clean() error {
	if err := os.RemoveAll(p.buildRoot); err != nil {
		return errors.ErrCleanFailed(p.buildRoot, err)
	}
	return nil
}

type compiledStyle struct {
	entry string
	file  string
	css   []byte
}

func (p *Pipeline) buildStyles(ctx context.Context) (*StylesResult, error) {
	start := time.Now()

	if p.compiler == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "no stylesheet compiler configured")
	}

	entries, err := p.glob(p.stylesGlob)
	if err != nil {
		return nil, err
	}

	compiled := make([]compiledStyle, 0, len(entries))
	for _, entry := range entries {
		if !styles.IsPartial(entry) {
			compiled = append(compiled, compiledStyle{entry: entry})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range compiled {
		item := &compiled[i]
		g.Go(func() error {
			source := filepath.Join(p.srcRoot, filepath.FromSlash(item.entry))

			css, err := p.compiler.Compile(gctx, source)
			if err != nil {
				return err
			}
			if p.transforms != nil {
				if css, err = p.transforms.Apply(gctx, source, css); err != nil {
					return err
				}
			}

			item.css = css
			item.file = styles.HashedName(p.hashFormat, item.entry, css)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outDir := filepath.Join(p.buildRoot, filepath.FromSlash(p.stylesPath))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.ErrWriteFailed(outDir, err)
	}

	result := &StylesResult{}
	for _, item := range compiled {
		target := filepath.Join(outDir, item.file)
		if err := os.WriteFile(target, item.css, 0o644); err != nil {
			return nil, errors.ErrWriteFailed(target, err)
		}
		result.Outputs = append(result.Outputs, StyleOutput{
			Entry: item.entry,
			File:  item.file,
			Path:  target,
			Size:  len(item.css),
		})
	}

	previous, _ := p.manifest.Lookup(p.group)
	p.manifest.Clear(p.group)

	current := make(map[string]bool, len(compiled))
	for _, item := range compiled {
		p.manifest.Record(p.group, item.file)
		current[item.file] = true
	}

	for _, file := range previous {
		if current[file] {
			continue
		}
		stale := filepath.Join(outDir, file)
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			p.logger.Warn(ctx, err, "Failed to remove stale stylesheet", "file", stale)
			continue
		}
		result.Removed = append(result.Removed, file)
	}

	recorded, _ := p.manifest.Lookup(p.group)
	p.metrics.SetManifestEntries(p.group, len(recorded))

	result.Duration = time.Since(start)
	p.logger.Info(ctx, "Stylesheets built",
		"entries", len(compiled),
		"removed", len(result.Removed),
	)
	return result, nil
}

type renderedPage struct {
	rel    string
	output []byte
}

func (p *Pipeline) renderTemplates(ctx context.Context) (*TemplatesResult, error) {
	start := time.Now()

	sources, err := p.glob(p.htmlGlob)
	if err != nil {
		return nil, err
	}

	data := p.templateData()

	pages := make([]renderedPage, 0, len(sources))
	for _, rel := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.insideBuildRoot(rel) {
			continue
		}

		source := filepath.Join(p.srcRoot, filepath.FromSlash(rel))
		raw, err := os.ReadFile(source)
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeReadFailed, "failed to read template", err).
				WithLocation(source, 0, 0)
		}

		tmpl, err := template.New(rel).Parse(string(raw))
		if err != nil {
			return nil, errors.NewBuildError(errors.ErrCodeTemplateFailed, "failed to parse template", err).
				WithLocation(source, 0, 0)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, errors.NewBuildError(errors.ErrCodeTemplateFailed, "failed to render template", err).
				WithLocation(source, 0, 0)
		}

		pages = append(pages, renderedPage{rel: rel, output: buf.Bytes()})
	}

	result := &TemplatesResult{}
	for _, page := range pages {
		target := filepath.Join(p.buildRoot, filepath.FromSlash(page.rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, errors.ErrWriteFailed(target, err)
		}
		if err := os.WriteFile(target, page.output, 0o644); err != nil {
			return nil, errors.ErrWriteFailed(target, err)
		}
		result.Pages = append(result.Pages, page.rel)
	}

	result.Duration = time.Since(start)
	p.logger.Info(ctx, "Templates rendered", "pages", len(result.Pages))
	return result, nil
}

// templateData renders the styles group's links. An unknown group or a
// fallback result both yield empty markup.
func (p *Pipeline) templateData() TemplateData {
	res, ok := manifest.Query(p.manifest, p.group, manifest.LinkTags(p.stylesPath))
	if !ok {
		return TemplateData{}
	}

	data := TemplateData{StyleHrefs: manifest.Hrefs(p.stylesPath, res.Entries)}
	if !res.Fallback {
		data.Styles = res.Value
	}
	return data
}

// glob matches pattern under the source root and returns slash-separated
// relative paths in lexical order. A missing source root matches nothing.
func (p *Pipeline) glob(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid glob pattern %q", pattern))
	}

	if _, err := os.Stat(p.srcRoot); os.IsNotExist(err) {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(p.srcRoot), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "failed to match sources", err).
			WithContext("pattern", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

// insideBuildRoot reports whether a source-relative path lies in the build
// root, which happens when the build root is nested in the source root.
func (p *Pipeline) insideBuildRoot(rel string) bool {
	buildRel, err := filepath.Rel(p.srcRoot, p.buildRoot)
	if err != nil || buildRel == ".." || strings.HasPrefix(buildRel, ".."+string(filepath.Separator)) {
		return false
	}
	buildRel = filepath.ToSlash(buildRel)
	return rel == buildRel || strings.HasPrefix(rel, path.Clean(buildRel)+"/")
}
