package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Stage names used as the "stage" label.
const (
	StageClean     = "clean"
	StageStyles    = "styles"
	StageTemplates = "templates"
)

// Recorder defines observability hooks for the pipeline and the dev session.
// Implementations may forward to Prometheus or drop everything.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(result ResultLabel)
	SetManifestEntries(group string, n int)
	IncRebuild(kind string)
	SetLiveReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are disabled).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncBuildOutcome(ResultLabel)                {}
func (NoopRecorder) SetManifestEntries(string, int)             {}
func (NoopRecorder) IncRebuild(string)                          {}
func (NoopRecorder) SetLiveReloadClients(int)                   {}

// ResultFor maps an error to its result label.
func ResultFor(err error, canceled bool) ResultLabel {
	switch {
	case err == nil:
		return ResultSuccess
	case canceled:
		return ResultCanceled
	default:
		return ResultFailed
	}
}
