package errors

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// BuildError is a single diagnostic reported by the stylesheet compiler.
type BuildError struct {
	File      string        `json:"file"`
	Line      int           `json:"line"`
	Column    int           `json:"column"`
	Message   string        `json:"message"`
	Severity  ErrorSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

var severityNames = [...]string{"info", "warning", "error", "fatal"}

func (s ErrorSeverity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}

// Location formats the position as file[:line[:column]], leaving out parts
// the compiler did not report.
func (be *BuildError) Location() string {
	loc := be.File
	if be.Line > 0 {
		loc += ":" + strconv.Itoa(be.Line)
		if be.Column > 0 {
			loc += ":" + strconv.Itoa(be.Column)
		}
	}
	return loc
}

func (be *BuildError) Error() string {
	return fmt.Sprintf("%s: %s: %s", be.Location(), be.Severity, be.Message)
}

// ErrorCollector holds the outcome of the most recent failed rebuild cycle
// for the error overlay. Compiler diagnostics and other failures, such as a
// template that does not parse, are kept apart so the overlay can show a
// location for the former.
type ErrorCollector struct {
	mu          sync.RWMutex
	diagnostics []BuildError
	failures    []error
}

// NewErrorCollector creates an empty collector.
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Add records a diagnostic, stamping it if the compiler gave no time.
func (ec *ErrorCollector) Add(diag BuildError) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.add(diag)
}

// AddError records err. A BuildError anywhere in the chain is stored as a
// diagnostic; anything else as a plain failure. nil is ignored.
func (ec *ErrorCollector) AddError(err error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.addError(err)
}

// Replace swaps the collected errors for err in one step, so readers never
// observe the empty state between two cycles.
func (ec *ErrorCollector) Replace(err error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.diagnostics = nil
	ec.failures = nil
	ec.addError(err)
}

func (ec *ErrorCollector) add(diag BuildError) {
	if diag.Timestamp.IsZero() {
		diag.Timestamp = time.Now()
	}
	ec.diagnostics = append(ec.diagnostics, diag)
}

func (ec *ErrorCollector) addError(err error) {
	if err == nil {
		return
	}
	var diag *BuildError
	if errors.As(err, &diag) {
		ec.add(*diag)
		return
	}
	ec.failures = append(ec.failures, err)
}

// GetErrors returns a copy of the collected diagnostics.
func (ec *ErrorCollector) GetErrors() []BuildError {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return append([]BuildError{}, ec.diagnostics...)
}

// GetAllErrors returns the diagnostics followed by the other failures.
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	all := make([]error, 0, len(ec.diagnostics)+len(ec.failures))
	for i := range ec.diagnostics {
		diag := ec.diagnostics[i]
		all = append(all, &diag)
	}
	return append(all, ec.failures...)
}

// GetErrorsByFile returns the diagnostics reported against file.
func (ec *ErrorCollector) GetErrorsByFile(file string) []BuildError {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	var matched []BuildError
	for _, diag := range ec.diagnostics {
		if diag.File == file {
			matched = append(matched, diag)
		}
	}
	return matched
}

// Files lists the files with diagnostics, in first-reported order.
func (ec *ErrorCollector) Files() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	seen := make(map[string]bool, len(ec.diagnostics))
	var files []string
	for _, diag := range ec.diagnostics {
		if diag.File != "" && !seen[diag.File] {
			seen[diag.File] = true
			files = append(files, diag.File)
		}
	}
	return files
}

func (ec *ErrorCollector) HasErrors() bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return len(ec.diagnostics) > 0 || len(ec.failures) > 0
}

// Clear forgets everything, typically after a successful cycle.
func (ec *ErrorCollector) Clear() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.diagnostics = nil
	ec.failures = nil
}

func (ec *ErrorCollector) otherFailures() []error {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return append([]error{}, ec.failures...)
}
