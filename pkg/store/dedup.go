package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Dedup is the set of identifiers already acted upon, plus the time of the
// last completed check. The set only grows: identifiers are never removed
// individually, only reset wholesale by manual recovery.
type Dedup struct {
	ids         map[string]struct{}
	lastChecked *time.Time
}

// dedupFile is the on-disk representation of the dedup artifact
type dedupFile struct {
	SeenIDs     []string   `json:"seen_ids"`
	LastChecked *time.Time `json:"last_checked"`
}

// NewDedup creates an empty dedup store.
func NewDedup() *Dedup {
	return &Dedup{ids: map[string]struct{}{}}
}

// LoadDedup reads the dedup artifact from path. A missing file yields an
// empty store (first run); a corrupt file is an error so the caller can stop
// before mutating anything.
func LoadDedup(path string) (*Dedup, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		if os.IsNotExist(err) {
			return NewDedup(), nil
		}
		return nil, fmt.Errorf("read dedup store %s: %w", path, err)
	}

	var f dedupFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dedup store %s: %w", path, err)
	}

	d := NewDedup()
	for _, id := range f.SeenIDs {
		d.ids[id] = struct{}{}
	}
	d.lastChecked = f.LastChecked
	return d, nil
}

// Contains reports whether the identifier has already been acted upon.
func (d *Dedup) Contains(id string) bool {
	_, ok := d.ids[id]
	return ok
}

// Add records the identifier. Adding an existing identifier is a no-op.
func (d *Dedup) Add(id string) {
	d.ids[id] = struct{}{}
}

// SetLastChecked records the time of the current run.
func (d *Dedup) SetLastChecked(now time.Time) {
	d.lastChecked = &now
}

// LastChecked returns the time of the last completed run, nil before the
// first one.
func (d *Dedup) LastChecked() *time.Time {
	return d.lastChecked
}

// Len returns the number of tracked identifiers.
func (d *Dedup) Len() int {
	return len(d.ids)
}

// Save writes the dedup artifact to path atomically. Identifiers are sorted
// so the artifact is stable across runs with the same content.
func (d *Dedup) Save(path string) error {
	f := dedupFile{SeenIDs: make([]string, 0, len(d.ids)), LastChecked: d.lastChecked}
	for id := range d.ids {
		f.SeenIDs = append(f.SeenIDs, id)
	}
	sort.Strings(f.SeenIDs)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dedup store: %w", err)
	}
	if err := WriteAtomic(path, data); err != nil {
		return fmt.Errorf("save dedup store: %w", err)
	}
	return nil
}
