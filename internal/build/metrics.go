package build

import (
	"sync"
	"time"
)

// BuildMetrics counts pipeline runs for the dev server's health endpoint.
// Each call to a Pipeline stage method, or to Build, is one run.
type BuildMetrics struct {
	TotalBuilds      int64         `json:"total_builds"`
	SuccessfulBuilds int64         `json:"successful_builds"`
	FailedBuilds     int64         `json:"failed_builds"`
	AverageDuration  time.Duration `json:"average_duration"`
	TotalDuration    time.Duration `json:"total_duration"`
	LastBuild        time.Time     `json:"last_build"`
	LastError        string        `json:"last_error,omitempty"`
	mutex            sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordBuild records one run and its outcome.
func (bm *BuildMetrics) RecordBuild(duration time.Duration, err error) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds++
	bm.TotalDuration += duration
	bm.LastBuild = time.Now()

	if err != nil {
		bm.FailedBuilds++
		bm.LastError = err.Error()
	} else {
		bm.SuccessfulBuilds++
		bm.LastError = ""
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	return BuildMetrics{
		TotalBuilds:      bm.TotalBuilds,
		SuccessfulBuilds: bm.SuccessfulBuilds,
		FailedBuilds:     bm.FailedBuilds,
		AverageDuration:  bm.AverageDuration,
		TotalDuration:    bm.TotalDuration,
		LastBuild:        bm.LastBuild,
		LastError:        bm.LastError,
	}
}

// GetSuccessRate returns the share of successful runs as a percentage,
// reported by the health endpoint.
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalBuilds == 0 {
		return 0.0
	}

	return float64(bm.SuccessfulBuilds) / float64(bm.TotalBuilds) * 100.0
}
