package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"regwatch/pkg/deadline"
	"regwatch/pkg/domain"
)

// Ledger is the system of record: one entry per identifier ever seen, with
// lifecycle timestamps. Every derived artifact (feed, statistics) can be
// regenerated from it, which is the designated recovery path.
type Ledger struct {
	events map[string]*domain.LedgerEntry
}

// ledgerFile is the on-disk representation of the ledger artifact
type ledgerFile struct {
	Events map[string]*domain.LedgerEntry `json:"events"`
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{events: map[string]*domain.LedgerEntry{}}
}

// LoadLedger reads the ledger artifact from path. A missing file yields an
// empty ledger; a corrupt file is an error.
func LoadLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		if os.IsNotExist(err) {
			return NewLedger(), nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}

	l := NewLedger()
	if f.Events != nil {
		l.events = f.Events
	}
	return l, nil
}

// Touch folds one snapshot sighting into the ledger. A first sighting
// inserts a fresh entry with first-seen = last-seen = now. A re-appearance
// updates last-seen only; this applies to expired entries too, since an
// event still listed on the page after its deadline is an observation, not a
// reopening. Returns true when the entry was created.
func (l *Ledger) Touch(ev domain.Event, now time.Time) bool {
	if e, ok := l.events[ev.ID]; ok {
		e.LastSeen = now
		return false
	}

	l.events[ev.ID] = &domain.LedgerEntry{
		ID:           ev.ID,
		Title:        ev.Title,
		Link:         ev.Link,
		DeadlineText: ev.DeadlineText,
		Description:  ev.Description,
		FirstSeen:    now,
		LastSeen:     now,
	}
	return true
}

// MarkExpiredIfDue transitions the entry to expired when its stored deadline
// plus the grace buffer has passed. The transition happens exactly once:
// expired-at and registration-duration are set together and an already
// expired entry is left untouched. Returns true when the transition occurred
// on this call.
func (l *Ledger) MarkExpiredIfDue(id string, bufferDays int, now time.Time) bool {
	e, ok := l.events[id]
	if !ok || e.Expired() {
		return false
	}
	if !deadline.IsExpired(e.DeadlineText, bufferDays, now) {
		return false
	}

	expiredAt := now
	days := math.Round(now.Sub(e.FirstSeen).Hours()/24*10) / 10
	e.ExpiredAt = &expiredAt
	e.RegistrationDays = &days
	return true
}

// MissingFrom returns identifiers present in the ledger but absent from the
// current snapshot. These still get expiry-evaluated every run: a deadline
// can pass while the event is no longer listed on the page.
func (l *Ledger) MissingFrom(snapshot map[string]struct{}) []string {
	var missing []string
	for id := range l.events {
		if _, ok := snapshot[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

// Get returns the entry for the identifier.
func (l *Ledger) Get(id string) (*domain.LedgerEntry, bool) {
	e, ok := l.events[id]
	return e, ok
}

// Put inserts or replaces an entry wholesale, used by recovery rebuilds.
func (l *Ledger) Put(e *domain.LedgerEntry) {
	l.events[e.ID] = e
}

// IDs returns all tracked identifiers, sorted.
func (l *Ledger) IDs() []string {
	ids := make([]string, 0, len(l.events))
	for id := range l.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns all entries ordered by first-seen descending, ties broken by
// identifier for stable output.
func (l *Ledger) All() []*domain.LedgerEntry {
	entries := make([]*domain.LedgerEntry, 0, len(l.events))
	for _, e := range l.events {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].FirstSeen.Equal(entries[j].FirstSeen) {
			return entries[i].FirstSeen.After(entries[j].FirstSeen)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Len returns the number of tracked entries.
func (l *Ledger) Len() int {
	return len(l.events)
}

// Save writes the ledger artifact to path atomically.
func (l *Ledger) Save(path string) error {
	data, err := json.MarshalIndent(ledgerFile{Events: l.events}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := WriteAtomic(path, data); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
