// Package feed maintains the published RSS document: an ordered,
// tag-annotated list of discovered events. The feed is a derived view over
// the ledger and can be regenerated from it at any time; it is never the
// sole source of truth for identifiers.
package feed

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/mmcdole/gofeed"

	"regwatch/pkg/domain"
	"regwatch/pkg/store"
)

// category tags managed by the synthesizer on top of the base tag
const (
	TagNew     = "new"
	TagExpired = "expired"
)

// Ledger is the subset of the lifecycle ledger the synthesizer derives from
type Ledger interface {
	Get(id string) (*domain.LedgerEntry, bool)
	All() []*domain.LedgerEntry
}

// Item is one published feed entry
type Item struct {
	Title       string
	Link        string
	Description string
	GUID        string
	Published   time.Time
	Categories  []string
}

// ChannelInfo holds the static channel metadata of the published feed
type ChannelInfo struct {
	Title       string
	Link        string // the watched page
	Description string
	SelfURL     string // where the feed itself is published
	BaseTag     string // category present on every item, e.g. "EUGLOH Event"
	Generator   string
}

// Synthesizer maintains the feed document. Items are ordered by insertion,
// newest discovery first; retagging never reorders.
type Synthesizer struct {
	path      string
	info      ChannelInfo
	items     []Item
	lastBuild time.Time
}

// NewSynthesizer creates a synthesizer for the feed artifact at path.
func NewSynthesizer(path string, info ChannelInfo) *Synthesizer {
	return &Synthesizer{path: path, info: info}
}

// Load reads the current feed document from disk. A missing file means the
// document will be created on the next save; a corrupt one is an error.
func (s *Synthesizer) Load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.items = nil
			return nil
		}
		return fmt.Errorf("open feed %s: %w", s.path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	parsed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		return fmt.Errorf("parse feed %s: %w", s.path, err)
	}

	s.items = make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		item := Item{
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			GUID:        it.GUID,
			Categories:  it.Categories,
		}
		if item.GUID == "" {
			item.GUID = it.Link
		}
		if it.PublishedParsed != nil {
			item.Published = it.PublishedParsed.UTC()
		}
		s.items = append(s.items, item)
	}
	return nil
}

// Items returns the current item list, newest first.
func (s *Synthesizer) Items() []Item {
	return s.items
}

// Len returns the number of published items.
func (s *Synthesizer) Len() int {
	return len(s.items)
}

// Prepend inserts newly discovered events at the head of the item list,
// each tagged with the base category and "new". Events are expected in
// discovery order and keep that order at the top of the feed. An event whose
// identifier is already published is skipped, so a replayed discovery never
// duplicates an item.
func (s *Synthesizer) Prepend(events []domain.Event, now time.Time) {
	if len(events) == 0 {
		return
	}

	present := make(map[string]struct{}, len(s.items))
	for _, it := range s.items {
		present[it.GUID] = struct{}{}
	}

	fresh := make([]Item, 0, len(events))
	for _, ev := range events {
		if _, ok := present[ev.ID]; ok {
			continue
		}
		fresh = append(fresh, Item{
			Title:       ev.Title,
			Link:        ev.Link,
			Description: ev.Description,
			GUID:        ev.ID,
			Published:   now,
			Categories:  []string{s.info.BaseTag, TagNew},
		})
	}
	s.items = append(fresh, s.items...)
	s.lastBuild = now
}

// RetagAll recomputes the category tags of every item against the ledger:
// "new" iff the entry's first-seen is within the recency window of now,
// "expired" iff the entry has its expiry set. The pass runs every
// invocation, not only when new events were found, so a feed touched only by
// expiry transitions still reflects reality. Items without a ledger entry
// are handled best-effort from their own publish date and stored tags.
func (s *Synthesizer) RetagAll(ledger Ledger, recency time.Duration, now time.Time) {
	for i := range s.items {
		it := &s.items[i]

		entry, ok := ledger.Get(it.GUID)
		if !ok {
			tags := []string{s.info.BaseTag}
			if !it.Published.IsZero() && now.Sub(it.Published) <= recency {
				tags = append(tags, TagNew)
			}
			if hasTag(it.Categories, TagExpired) {
				tags = append(tags, TagExpired)
			}
			it.Categories = tags
			continue
		}

		tags := []string{s.info.BaseTag}
		if now.Sub(entry.FirstSeen) <= recency {
			tags = append(tags, TagNew)
		}
		if entry.Expired() {
			tags = append(tags, TagExpired)
		}
		it.Categories = tags
	}
	s.lastBuild = now
}

// TouchBuildTimestamp updates the feed's last-build marker without altering
// items, used when a run found nothing to change.
func (s *Synthesizer) TouchBuildTimestamp(now time.Time) {
	s.lastBuild = now
}

// AddMissing inserts an item for every ledger entry absent from the current
// item list, positioned by publish time so the newest-first order holds.
// The feed derives from the ledger, so an item lost to a crash between
// artifact promotions reappears on the next pass instead of staying lost.
// Returns the number of items restored.
func (s *Synthesizer) AddMissing(ledger Ledger) int {
	present := make(map[string]struct{}, len(s.items))
	for _, it := range s.items {
		present[it.GUID] = struct{}{}
	}

	restored := 0
	for _, e := range ledger.All() { // first-seen descending
		if _, ok := present[e.ID]; ok {
			continue
		}
		item := s.itemFromEntry(e)
		pos := len(s.items)
		for i := range s.items {
			if s.items[i].Published.Before(item.Published) {
				pos = i
				break
			}
		}
		s.items = append(s.items[:pos], append([]Item{item}, s.items[pos:]...)...)
		present[e.ID] = struct{}{}
		restored++
	}
	return restored
}

// RebuildFromLedger regenerates the entire item list from the ledger,
// ordered by first-seen descending. This is the disaster-recovery path; a
// subsequent RetagAll produces tags identical to a feed built incrementally
// from the same ledger state.
func (s *Synthesizer) RebuildFromLedger(ledger Ledger) {
	entries := ledger.All()
	s.items = make([]Item, 0, len(entries))
	for _, e := range entries {
		s.items = append(s.items, s.itemFromEntry(e))
	}
}

func (s *Synthesizer) itemFromEntry(e *domain.LedgerEntry) Item {
	desc := e.Description
	if desc == "" {
		if e.DeadlineText != "" {
			desc = "Deadline: " + e.DeadlineText
		} else {
			desc = e.Title
		}
	}
	return Item{
		Title:       e.Title,
		Link:        e.Link,
		Description: desc,
		GUID:        e.ID,
		Published:   e.FirstSeen,
		Categories:  []string{s.info.BaseTag},
	}
}

// Save writes the feed document atomically. The output stays well-formed
// under arbitrary title and description content; escaping is left to the
// XML marshaler.
func (s *Synthesizer) Save() error {
	items := make([]*RSSItem, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, &RSSItem{
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			PubDate:     it.Published.UTC().Format(time.RFC1123Z),
			GUID:        RSSGUID{IsPermaLink: "false", Value: it.GUID},
			Categories:  it.Categories,
		})
	}

	build := s.lastBuild.UTC().Format(time.RFC1123Z)
	doc := &RSS{
		Version: "2.0",
		Atom:    "http://www.w3.org/2005/Atom",
		Channel: &RSSChannel{
			Title:         s.info.Title,
			Link:          s.info.Link,
			Description:   s.info.Description,
			Language:      "en",
			LastBuildDate: build,
			PubDate:       build,
			TTL:           1440,
			Generator:     s.info.Generator,
			Items:         items,
		},
	}
	if s.info.SelfURL != "" {
		doc.Channel.AtomLink = &AtomLink{Href: s.info.SelfURL, Rel: "self", Type: "application/rss+xml"}
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}

	if err := store.WriteAtomic(s.path, []byte(xml.Header+string(output))); err != nil {
		return fmt.Errorf("save feed: %w", err)
	}
	return nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
