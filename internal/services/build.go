package services

import (
	"context"
	"time"

	"github.com/conneroisu/assetpipe/internal/build"
	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/styles"
)

// BuildService runs production builds.
type BuildService struct {
	config   *config.Config
	logger   logging.Logger
	metrics  metrics.Recorder
	compiler styles.Compiler
}

// NewBuildService creates a new build service. A nil logger discards output.
func NewBuildService(cfg *config.Config, logger logging.Logger) *BuildService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &BuildService{
		config:  cfg,
		logger:  logger,
		metrics: metrics.NoopRecorder{},
	}
}

// WithCompiler replaces the configured stylesheet compiler.
func (s *BuildService) WithCompiler(compiler styles.Compiler) *BuildService {
	s.compiler = compiler
	return s
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	Duration    time.Duration
	Stylesheets []build.StyleOutput
	Pages       []string
	Manifest    map[string][]string
}

// Build cleans the build root, compiles stylesheets and renders templates.
// Any failure aborts the build and is returned.
func (s *BuildService) Build(ctx context.Context) (*BuildResult, error) {
	pipeline := NewPipeline(s.config, ModeProduction, s.compiler, s.logger, s.metrics)

	res, err := pipeline.Build(ctx)
	result := &BuildResult{Manifest: pipeline.Manifest().Snapshot()}
	if res != nil {
		result.Duration = res.Duration
		if res.Styles != nil {
			result.Stylesheets = res.Styles.Outputs
		}
		if res.Templates != nil {
			result.Pages = res.Templates.Pages
		}
	}
	if err != nil {
		return result, err
	}

	s.logger.Info(ctx, "Build completed",
		"stylesheets", len(result.Stylesheets),
		"pages", len(result.Pages),
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// Clean removes the build root.
func (s *BuildService) Clean(ctx context.Context) error {
	pipeline := NewPipeline(s.config, ModeProduction, s.compiler, s.logger, s.metrics)
	return pipeline.Clean(ctx)
}
