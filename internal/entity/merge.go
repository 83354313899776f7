package entity

import "sync"

// Merger is the run-wide entity catalog. It is safe for concurrent use.
type Merger struct {
	mu       sync.Mutex
	entities Map
}

// NewMerger returns an empty catalog.
func NewMerger() *Merger {
	return &Merger{entities: make(Map)}
}

// Merge stores entry under name and reports whether it was written. A
// placeholder never replaces an entity that already has fields; every other
// collision overwrites.
func (m *Merger) Merge(name string, entry Entry) bool {
	if entry.Fields == nil {
		entry.Fields = []Field{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entities[name]; ok && entry.IsPlaceholder() && !existing.IsPlaceholder() {
		return false
	}
	m.entities[name] = entry
	return true
}

// MergeAll merges every named entity in order and returns how many were
// written.
func (m *Merger) MergeAll(named []Named) int {
	written := 0
	for _, n := range named {
		if m.Merge(n.Name, n.Entry) {
			written++
		}
	}
	return written
}

// Len returns the number of entities in the catalog.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities)
}

// Snapshot returns a copy of the catalog.
func (m *Merger) Snapshot() Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(Map, len(m.entities))
	for k, v := range m.entities {
		out[k] = v
	}
	return out
}
