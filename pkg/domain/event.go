package domain

import "time"

// Event is a single registration record extracted from one scrape of the
// target page. Events are transient: they exist only for the duration of a
// run and are folded into the ledger by the reconciler.
type Event struct {
	ID           string // canonical identifier: absolute link with query and fragment stripped
	Title        string
	DeadlineText string // raw deadline text as found on the page, e.g. "Deadline: 31 Dec 2026 23:59"
	Link         string
	Description  string
}

// Warning reports a record that could not be extracted or processed.
// Warnings are collected and returned instead of being logged from inside
// parsing logic, so the caller decides what to do with them.
type Warning struct {
	Ref    string // best available reference to the offending record, usually a link or selector
	Reason string
}

// LedgerEntry is the durable lifecycle record for one event identifier.
// FirstSeen is immutable once set. ExpiredAt and RegistrationDays are set
// exactly once, together, and never change afterwards: expiry is one-way.
type LedgerEntry struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Link             string     `json:"link"`
	DeadlineText     string     `json:"deadline"`
	Description      string     `json:"description,omitempty"`
	FirstSeen        time.Time  `json:"first_seen"`
	LastSeen         time.Time  `json:"last_seen"`
	ExpiredAt        *time.Time `json:"expired_at"`
	RegistrationDays *float64   `json:"registration_duration_days"`
}

// Expired reports whether the entry has transitioned to its terminal state.
func (e *LedgerEntry) Expired() bool {
	return e.ExpiredAt != nil
}

// AgeDays returns how long the entry has been tracked, in days.
func (e *LedgerEntry) AgeDays(now time.Time) float64 {
	return now.Sub(e.FirstSeen).Hours() / 24
}
