// Package manifest tracks which output files the pipeline emitted for each
// logical asset group and renders them into markup for template injection.
//
// A Manifest is owned by a single pipeline. The styles step writes to it and
// the template step reads from it; the mutex only exists so dev server
// handlers can take snapshots while a rebuild is running.
package manifest

import (
	"sort"
	"sync"
)

// Manifest maps a group name to the ordered list of files emitted for it.
// Within a group a filename appears at most once.
type Manifest struct {
	groups map[string][]string
	mutex  sync.RWMutex
}

// Result is the outcome of a Query against a known group.
type Result[T any] struct {
	// Value is the transform output. It is the zero value when Fallback is set.
	Value T
	// Entries is a copy of the group's filenames in insertion order.
	Entries []string
	// Fallback reports that the transform returned its zero value, so callers
	// should use Entries instead of Value. A transform that legitimately
	// produces a zero value cannot be told apart from one that produced
	// nothing; both set Fallback.
	Fallback bool
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{
		groups: make(map[string][]string),
	}
}

// Record registers filename under group and returns it.
//
// If the group already holds filename, the old occurrence is removed and the
// name is appended again, so the most recently recorded file is always last.
func (m *Manifest) Record(group, filename string) string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entries, exists := m.groups[group]
	if !exists {
		m.groups[group] = []string{filename}
		return filename
	}

	for i, existing := range entries {
		if existing == filename {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	m.groups[group] = append(entries, filename)

	return filename
}

// Lookup returns a copy of the group's entries. The boolean is false when the
// group has never been recorded, which is distinct from an empty group.
func (m *Manifest) Lookup(group string) ([]string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	entries, exists := m.groups[group]
	if !exists {
		return nil, false
	}

	result := make([]string, len(entries))
	copy(result, entries)
	return result, true
}

// Clear empties a group in place while keeping it known. It returns false
// when the group does not exist.
func (m *Manifest) Clear(group string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entries, exists := m.groups[group]
	if !exists {
		return false
	}

	m.groups[group] = entries[:0]
	return true
}

// Groups returns the known group names sorted alphabetically.
func (m *Manifest) Groups() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.groups))
	for name := range m.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a deep copy of the whole manifest.
func (m *Manifest) Snapshot() map[string][]string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snapshot := make(map[string][]string, len(m.groups))
	for name, entries := range m.groups {
		copied := make([]string, len(entries))
		copy(copied, entries)
		snapshot[name] = copied
	}
	return snapshot
}

// Query applies transform to the entries of group.
//
// The boolean is false when the group is unknown; transform is not called in
// that case. When transform returns the zero value of T the result falls back
// to the raw entries (see Result.Fallback). This lets one accessor serve both
// "give me the rendered markup" and "give me the list" callers.
func Query[T comparable](m *Manifest, group string, transform func([]string) T) (Result[T], bool) {
	entries, exists := m.Lookup(group)
	if !exists {
		return Result[T]{}, false
	}

	var zero T
	if transform == nil {
		return Result[T]{Entries: entries, Fallback: true}, true
	}

	value := transform(entries)
	if value == zero {
		return Result[T]{Entries: entries, Fallback: true}, true
	}

	return Result[T]{Value: value, Entries: entries}, true
}
