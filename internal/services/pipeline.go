// Package services holds the command use cases: one-shot builds, cleaning,
// the dev loop and project initialisation. Commands in cmd/ only parse flags
// and delegate here.
package services

import (
	"github.com/conneroisu/assetpipe/internal/build"
	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/styles"
)

// Mode selects between production and dev pipelines.
type Mode int

const (
	ModeProduction Mode = iota
	ModeDev
)

// NewCompiler returns the stylesheet compiler configured for mode. Dev builds
// pass the compiler's dev arguments, typically asking for source maps.
func NewCompiler(cfg *config.Config, mode Mode) styles.Compiler {
	args := cfg.Styles.Compiler.Args
	if mode == ModeDev {
		args = cfg.Styles.Compiler.DevArgs
	}
	return styles.NewDefaultCompiler(cfg.Styles.Compiler.Command, args...)
}

// NewTransforms returns the optimisation chain for mode. Production always
// optimises; dev only when development.optimize is set.
func NewTransforms(cfg *config.Config, mode Mode) styles.Chain {
	if mode == ModeDev && !cfg.Development.Optimize {
		return nil
	}
	return styles.NewOptimizeChain(cfg.Styles.Prefixes)
}

// NewPipeline wires a pipeline for mode. A nil compiler uses NewCompiler.
func NewPipeline(cfg *config.Config, mode Mode, compiler styles.Compiler, logger logging.Logger, recorder metrics.Recorder) *build.Pipeline {
	if compiler == nil {
		compiler = NewCompiler(cfg, mode)
	}
	return build.New(build.Options{
		Config:     cfg,
		Compiler:   compiler,
		Transforms: NewTransforms(cfg, mode),
		Logger:     logger,
		Metrics:    recorder,
	})
}
