// Package reconcile drives one complete pass of the watcher: fetch the
// source page, intersect the extracted snapshot against persisted state,
// notify on discoveries, regenerate feed tags and statistics, and persist
// the artifacts. A failure before the first ledger mutation aborts the run
// with no state change.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"regwatch/pkg/domain"
	"regwatch/pkg/feed"
	"regwatch/pkg/notify"
	"regwatch/pkg/stats"
	"regwatch/pkg/store"
)

//go:generate moq -out mocks/fetcher.go -pkg mocks -skip-ensure -fmt goimports . Fetcher
//go:generate moq -out mocks/extractor.go -pkg mocks -skip-ensure -fmt goimports . Extractor

// Fetcher retrieves the source page
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Extractor produces the event snapshot from page markup
type Extractor interface {
	Events(r io.Reader) ([]domain.Event, []domain.Warning, error)
}

// Files holds the artifact locations
type Files struct {
	Ledger    string
	Dedup     string
	Feed      string
	StatsJSON string
	StatsHTML string
}

// Params defines reconciler configuration and dependencies
type Params struct {
	Fetcher       Fetcher
	Extractor     Extractor
	Notifiers     []notify.Notifier
	Files         Files
	Channel       feed.ChannelInfo
	BufferDays    int
	RecencyWindow time.Duration
	NotifyTimeout time.Duration
}

// Reconciler orchestrates a single run against the persisted state
type Reconciler struct {
	Params
}

// New creates a reconciler from the given parameters
func New(params Params) *Reconciler {
	if params.RecencyWindow == 0 {
		params.RecencyWindow = 7 * 24 * time.Hour
	}
	if params.NotifyTimeout == 0 {
		params.NotifyTimeout = 30 * time.Second
	}
	return &Reconciler{Params: params}
}

// RunResult summarizes one completed pass
type RunResult struct {
	SnapshotSize int
	NewEvents    []domain.Event
	Expired      int
	Vanished     int
	Warnings     []domain.Warning
	NotifyErrors int
}

// Run executes one pass. Fetch or extraction failures abort before any
// state is touched; persistence failures leave the previous artifacts
// intact due to the temp-write-then-promote discipline.
func (r *Reconciler) Run(ctx context.Context, now time.Time) (*RunResult, error) {
	page, err := r.Fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch source page: %w", err)
	}

	events, warnings, err := r.Extractor.Events(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("extract events: %w", err)
	}
	for _, w := range warnings {
		log.Printf("[WARN] extraction skipped %q: %s", w.Ref, w.Reason)
	}
	log.Printf("[INFO] snapshot has %d events", len(events))

	ledger, err := store.LoadLedger(r.Files.Ledger)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	dedup, err := store.LoadDedup(r.Files.Dedup)
	if err != nil {
		return nil, fmt.Errorf("load dedup store: %w", err)
	}

	synth := feed.NewSynthesizer(r.Files.Feed, r.Channel)
	feedLoadErr := synth.Load()
	if feedLoadErr != nil {
		log.Printf("[WARN] feed unreadable, will rebuild from ledger: %v", feedLoadErr)
	}

	result := &RunResult{SnapshotSize: len(events), Warnings: warnings}

	// step 1: touch the ledger and classify discoveries
	snapshot := make(map[string]struct{}, len(events))
	for _, ev := range events {
		snapshot[ev.ID] = struct{}{}
		ledger.Touch(ev, now)
		if !dedup.Contains(ev.ID) {
			dedup.Add(ev.ID)
			result.NewEvents = append(result.NewEvents, ev)
			log.Printf("[INFO] new event %q (%s)", ev.Title, ev.ID)
		}
	}
	result.Vanished = len(ledger.MissingFrom(snapshot))
	if result.Vanished > 0 {
		log.Printf("[DEBUG] %d tracked events no longer on the page", result.Vanished)
	}

	// step 2: expiry sweep over every tracked identifier, not only the snapshot
	for _, id := range ledger.IDs() {
		if ledger.MarkExpiredIfDue(id, r.BufferDays, now) {
			result.Expired++
			log.Printf("[INFO] event expired: %s", id)
		}
	}
	dedup.SetLastChecked(now)

	// step 3: notifications, concurrent per channel, isolated failures
	result.NotifyErrors = r.dispatch(ctx, result.NewEvents)

	// step 4: feed update; the retag pass runs even on no-change runs so
	// expiry transitions reach the feed
	if feedLoadErr != nil {
		synth.RebuildFromLedger(ledger)
	} else {
		if len(result.NewEvents) > 0 {
			synth.Prepend(result.NewEvents, now)
		}
		// the feed derives from the ledger: restore any item it lost,
		// e.g. to a crash after the ledger promotion but before the feed one
		if restored := synth.AddMissing(ledger); restored > 0 {
			log.Printf("[WARN] restored %d feed items missing against the ledger", restored)
		}
	}
	synth.RetagAll(ledger, r.RecencyWindow, now)
	synth.TouchBuildTimestamp(now)

	// step 5: statistics from the updated state
	snap := stats.Compute(ledger, dedup, now)

	// step 6: persist, ledger first so derived artifacts never get ahead of it
	if err := ledger.Save(r.Files.Ledger); err != nil {
		return nil, fmt.Errorf("save ledger: %w", err)
	}
	if err := dedup.Save(r.Files.Dedup); err != nil {
		return nil, fmt.Errorf("save dedup store: %w", err)
	}
	if err := synth.Save(); err != nil {
		return nil, fmt.Errorf("save feed: %w", err)
	}
	if err := stats.Save(snap, r.Files.StatsJSON, r.Files.StatsHTML); err != nil {
		return nil, fmt.Errorf("save statistics: %w", err)
	}

	log.Printf("[INFO] run complete: %d new, %d expired, %d tracked",
		len(result.NewEvents), result.Expired, ledger.Len())
	return result, nil
}

// dispatch sends each discovery to each configured channel. Failures are
// logged and counted but never abort the run; every call completes or
// times out before persistence proceeds.
func (r *Reconciler) dispatch(ctx context.Context, events []domain.Event) int {
	if len(events) == 0 || len(r.Notifiers) == 0 {
		return 0
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, n := range r.Notifiers {
		for _, ev := range events {
			g.Go(func() error {
				sendCtx, cancel := context.WithTimeout(gctx, r.NotifyTimeout)
				defer cancel()
				if err := n.Send(sendCtx, ev); err != nil {
					failed.Add(1)
					log.Printf("[WARN] %s notification failed for %s: %v", n.Name(), ev.ID, err)
					return nil
				}
				log.Printf("[DEBUG] %s notification sent for %s", n.Name(), ev.ID)
				return nil
			})
		}
	}
	_ = g.Wait() // goroutines never return errors, failures are counted
	return int(failed.Load())
}

// deadlineRe recovers the raw deadline text embedded in feed descriptions
var deadlineRe = regexp.MustCompile(`Deadline:\s*(.+)`)

// RebuildLedger reconstructs the ledger artifact from the current feed
// items, best effort: first-seen and last-seen approximate to the item's
// publish time, an "expired" tag sets expired-at to the same instant, and
// registration duration is left unknown. The dedup store is re-seeded from
// the same identifiers so rebuilt entries are not re-notified.
func (r *Reconciler) RebuildLedger() (int, error) {
	synth := feed.NewSynthesizer(r.Files.Feed, r.Channel)
	if err := synth.Load(); err != nil {
		return 0, fmt.Errorf("load feed for rebuild: %w", err)
	}

	ledger := store.NewLedger()
	dedup := store.NewDedup()
	for _, item := range synth.Items() {
		published := item.Published
		entry := &domain.LedgerEntry{
			ID:          item.GUID,
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
			FirstSeen:   published,
			LastSeen:    published,
		}
		if m := deadlineRe.FindStringSubmatch(item.Description); m != nil {
			entry.DeadlineText = strings.TrimSpace(m[1])
		}
		for _, tag := range item.Categories {
			if tag == feed.TagExpired {
				expiredAt := published
				entry.ExpiredAt = &expiredAt
			}
		}
		ledger.Put(entry)
		dedup.Add(entry.ID)
	}

	if err := ledger.Save(r.Files.Ledger); err != nil {
		return 0, fmt.Errorf("save rebuilt ledger: %w", err)
	}
	if err := dedup.Save(r.Files.Dedup); err != nil {
		return 0, fmt.Errorf("save rebuilt dedup store: %w", err)
	}
	log.Printf("[INFO] rebuilt ledger with %d entries from feed", ledger.Len())
	return ledger.Len(), nil
}
