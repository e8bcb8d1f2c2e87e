// Package metrics exposes pipeline and dev-session observability through a
// small Recorder interface with a Prometheus implementation.
package metrics
