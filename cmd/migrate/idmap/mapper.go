// Package idmap tracks the old-id/name to new-id correspondence produced by
// Phase 4a, the single source of truth ReferenceUpdater and Verifier consult
// to rewrite and check cross-workflow references. Grounded on the
// enthus-appdev-n8n-cli reference source's Pusher.idMapping map[string]string,
// generalized here to a two-index, name-first structure per spec.md §4.3.
package idmap

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Record is one migrated workflow's identity correspondence.
type Record struct {
	Name  string `json:"name"`
	OldID string `json:"oldId"`
	NewID string `json:"newId"`
}

// Mapper is safe for concurrent Record calls, though the engine's current
// phases run sequentially; the lock exists because a future parallel upload
// phase (spec.md Open Question territory) would otherwise need this rewritten.
type Mapper struct {
	mu      sync.Mutex
	byName  map[string]Record
	byOldID map[string]Record
}

// New returns an empty Mapper.
func New() *Mapper {
	return &Mapper{
		byName:  make(map[string]Record),
		byOldID: make(map[string]Record),
	}
}

// Record stores the mapping for a just-created workflow. It returns a
// *DuplicateMappingError if the name or old id was already recorded with a
// different new id, which would indicate a bug upstream (Phase 4a creating
// the same workflow twice) rather than legitimate data.
func (m *Mapper) Record(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byName[rec.Name]; ok && existing.NewID != rec.NewID {
		return &DuplicateMappingError{Key: rec.Name, Existing: existing.NewID, New: rec.NewID}
	}
	if rec.OldID != "" {
		if existing, ok := m.byOldID[rec.OldID]; ok && existing.NewID != rec.NewID {
			return &DuplicateMappingError{Key: rec.OldID, Existing: existing.NewID, New: rec.NewID}
		}
	}

	m.byName[rec.Name] = rec
	if rec.OldID != "" {
		m.byOldID[rec.OldID] = rec
	}
	return nil
}

// ByName looks up the new id for a workflow by its stable name.
func (m *Mapper) ByName(name string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byName[name]
	return rec, ok
}

// ByOldID looks up the new id for a workflow by its pre-migration id.
func (m *Mapper) ByOldID(oldID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byOldID[oldID]
	return rec, ok
}

// Resolve applies the same name-first, oldId-fallback policy as
// graph.Analyze: a hint is tried against ByName before value is tried
// against ByOldID, so a reference resolves the identical way during graph
// analysis and during the actual rewrite.
func (m *Mapper) Resolve(hint, oldID string) (Record, bool) {
	if hint != "" {
		if rec, ok := m.ByName(hint); ok {
			return rec, ok
		}
	}
	if oldID != "" {
		if rec, ok := m.ByOldID(oldID); ok {
			return rec, ok
		}
	}
	return Record{}, false
}

// Len reports the number of distinct workflows recorded.
func (m *Mapper) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byName)
}

// Serialize dumps every recorded mapping as a JSON array, sorted by name for
// reproducible diffs across runs, for inclusion in the migration report.
func (m *Mapper) Serialize() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := make([]Record, 0, len(m.byName))
	for _, rec := range m.byName {
		recs = append(recs, rec)
	}
	sortRecordsByName(recs)

	out, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize id mapping: %w", err)
	}
	return out, nil
}

func sortRecordsByName(recs []Record) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j].Name < recs[j-1].Name; j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}
