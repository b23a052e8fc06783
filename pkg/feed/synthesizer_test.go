package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/pkg/domain"
	"regwatch/pkg/store"
)

var testInfo = ChannelInfo{
	Title:       "Open Registrations",
	Link:        "https://www.example.org/courses/",
	Description: "Newly discovered events with open registrations",
	SelfURL:     "https://example.github.io/feed.xml",
	BaseTag:     "Course Event",
	Generator:   "regwatch/1.0",
}

func testEvent(id, title string) domain.Event {
	return domain.Event{
		ID:           id,
		Title:        title,
		Link:         id,
		DeadlineText: "31 Dec 2099 23:59",
		Description:  "Deadline: 31 Dec 2099 23:59",
	}
}

func TestSynthesizer_PrependAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	s := NewSynthesizer(path, testInfo)
	require.NoError(t, s.Load(), "missing feed file is not an error")
	assert.Equal(t, 0, s.Len())

	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.Prepend([]domain.Event{testEvent("https://x/e1", "First Event")}, now)
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, `<rss version="2.0"`)
	assert.Contains(t, content, "<title>Open Registrations</title>")
	assert.Contains(t, content, "<ttl>1440</ttl>")
	assert.Contains(t, content, "<language>en</language>")
	assert.Contains(t, content, `<atom:link href="https://example.github.io/feed.xml" rel="self" type="application/rss+xml">`)
	assert.Contains(t, content, "<title>First Event</title>")
	assert.Contains(t, content, `<guid isPermaLink="false">https://x/e1</guid>`)
	assert.Contains(t, content, "<category>Course Event</category>")
	assert.Contains(t, content, "<category>new</category>")

	// later discovery ends up on top
	s.Prepend([]domain.Event{testEvent("https://x/e2", "Second Event")}, now.Add(time.Hour))
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "https://x/e2", s.Items()[0].GUID)
	assert.Equal(t, "https://x/e1", s.Items()[1].GUID)
}

func TestSynthesizer_PrependSkipsPublishedIDs(t *testing.T) {
	s := NewSynthesizer(filepath.Join(t.TempDir(), "feed.xml"), testInfo)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	s.Prepend([]domain.Event{testEvent("https://x/e1", "First Event")}, now)
	require.Equal(t, 1, s.Len())

	// replaying the same discovery must not duplicate the item
	s.Prepend([]domain.Event{
		testEvent("https://x/e1", "First Event"),
		testEvent("https://x/e2", "Second Event"),
	}, now.Add(time.Hour))

	require.Equal(t, 2, s.Len())
	assert.Equal(t, "https://x/e2", s.Items()[0].GUID)
	assert.Equal(t, "https://x/e1", s.Items()[1].GUID)
	assert.Equal(t, now, s.Items()[1].Published, "existing item untouched")
}

func TestSynthesizer_AddMissing(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	ledger := store.NewLedger()
	ledger.Touch(testEvent("https://x/old", "Old"), now.Add(-30*24*time.Hour))
	ledger.Touch(testEvent("https://x/mid", "Mid"), now.Add(-10*24*time.Hour))
	ledger.Touch(testEvent("https://x/fresh", "Fresh"), now.Add(-24*time.Hour))

	// feed lost the middle item, e.g. to a crash before its promotion
	s := NewSynthesizer(filepath.Join(t.TempDir(), "feed.xml"), testInfo)
	s.Prepend([]domain.Event{testEvent("https://x/old", "Old")}, now.Add(-30*24*time.Hour))
	s.Prepend([]domain.Event{testEvent("https://x/fresh", "Fresh")}, now.Add(-24*time.Hour))

	require.Equal(t, 1, s.AddMissing(ledger))
	require.Equal(t, 3, s.Len())
	assert.Equal(t, "https://x/fresh", s.Items()[0].GUID)
	assert.Equal(t, "https://x/mid", s.Items()[1].GUID, "restored item slots in by publish time")
	assert.Equal(t, "https://x/old", s.Items()[2].GUID)
	assert.Equal(t, now.Add(-10*24*time.Hour), s.Items()[1].Published, "publish time approximates first-seen")

	// idempotent once the feed matches the ledger
	assert.Equal(t, 0, s.AddMissing(ledger))
	assert.Equal(t, 3, s.Len())
}

func TestSynthesizer_LoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	s := NewSynthesizer(path, testInfo)

	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.Prepend([]domain.Event{
		testEvent("https://x/e2", "Second & Co"),
		testEvent("https://x/e1", "First <Event>"),
	}, now)
	require.NoError(t, s.Save())

	loaded := NewSynthesizer(path, testInfo)
	require.NoError(t, loaded.Load())
	require.Equal(t, 2, loaded.Len())

	items := loaded.Items()
	assert.Equal(t, "Second & Co", items[0].Title, "markup-significant characters survive the round trip")
	assert.Equal(t, "First <Event>", items[1].Title)
	assert.Equal(t, "https://x/e2", items[0].GUID)
	assert.Equal(t, []string{"Course Event", "new"}, items[0].Categories)
	assert.Equal(t, now, items[0].Published)
}

func TestSynthesizer_RetagAll(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	recency := 7 * 24 * time.Hour

	ledger := store.NewLedger()
	// fresh and active
	ledger.Touch(testEvent("https://x/fresh", "Fresh"), now.Add(-24*time.Hour))
	// old and active
	ledger.Touch(testEvent("https://x/old", "Old"), now.Add(-30*24*time.Hour))
	// old and expired
	expired := domain.Event{ID: "https://x/done", Title: "Done", Link: "https://x/done", DeadlineText: "1 Jun 2026"}
	ledger.Touch(expired, now.Add(-40*24*time.Hour))
	require.True(t, ledger.MarkExpiredIfDue("https://x/done", 0, now.Add(-time.Hour)))

	s := NewSynthesizer(filepath.Join(t.TempDir(), "feed.xml"), testInfo)
	s.Prepend([]domain.Event{expired}, now.Add(-40*24*time.Hour))
	s.Prepend([]domain.Event{testEvent("https://x/old", "Old")}, now.Add(-30*24*time.Hour))
	s.Prepend([]domain.Event{testEvent("https://x/fresh", "Fresh")}, now.Add(-24*time.Hour))

	s.RetagAll(ledger, recency, now)

	items := s.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"Course Event", "new"}, items[0].Categories, "recent entry keeps the new tag")
	assert.Equal(t, []string{"Course Event"}, items[1].Categories, "recency window elapsed")
	assert.Equal(t, []string{"Course Event", "expired"}, items[2].Categories, "expired entry tagged")

	// retagging never reorders
	assert.Equal(t, "https://x/fresh", items[0].GUID)
	assert.Equal(t, "https://x/old", items[1].GUID)
	assert.Equal(t, "https://x/done", items[2].GUID)
}

func TestSynthesizer_RetagAll_NoLedgerEntry(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	recency := 7 * 24 * time.Hour
	s := NewSynthesizer(filepath.Join(t.TempDir(), "feed.xml"), testInfo)

	s.Prepend([]domain.Event{testEvent("https://x/orphan-old", "Orphan Old")}, now.Add(-10*24*time.Hour))
	s.Prepend([]domain.Event{testEvent("https://x/orphan-new", "Orphan New")}, now.Add(-time.Hour))

	s.RetagAll(store.NewLedger(), recency, now)

	items := s.Items()
	assert.Equal(t, []string{"Course Event", "new"}, items[0].Categories, "orphan falls back to its publish date")
	assert.Equal(t, []string{"Course Event"}, items[1].Categories, "orphan loses the new tag once aged out")
}

func TestSynthesizer_RebuildEquivalence(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	recency := 7 * 24 * time.Hour

	ledger := store.NewLedger()
	evA := testEvent("https://x/a", "A")
	evB := testEvent("https://x/b", "B")
	evC := domain.Event{ID: "https://x/c", Title: "C", Link: "https://x/c", DeadlineText: "1 Jun 2026", Description: "Deadline: 1 Jun 2026"}
	ledger.Touch(evC, now.Add(-40*24*time.Hour))
	ledger.Touch(evB, now.Add(-10*24*time.Hour))
	ledger.Touch(evA, now.Add(-2*24*time.Hour))
	require.True(t, ledger.MarkExpiredIfDue("https://x/c", 0, now.Add(-time.Hour)))

	// incremental: three runs, one discovery each, retagged at the end
	incremental := NewSynthesizer(filepath.Join(t.TempDir(), "feed.xml"), testInfo)
	incremental.Prepend([]domain.Event{evC}, now.Add(-40*24*time.Hour))
	incremental.Prepend([]domain.Event{evB}, now.Add(-10*24*time.Hour))
	incremental.Prepend([]domain.Event{evA}, now.Add(-2*24*time.Hour))
	incremental.RetagAll(ledger, recency, now)

	// rebuilt from the same ledger state
	rebuilt := NewSynthesizer(filepath.Join(t.TempDir(), "feed.xml"), testInfo)
	rebuilt.RebuildFromLedger(ledger)
	rebuilt.RetagAll(ledger, recency, now)

	require.Equal(t, incremental.Len(), rebuilt.Len())
	for i, want := range incremental.Items() {
		got := rebuilt.Items()[i]
		assert.Equal(t, want.GUID, got.GUID)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.Description, got.Description)
		assert.Equal(t, want.Categories, got.Categories)
		assert.Equal(t, want.Published, got.Published)
	}
}

func TestSynthesizer_TouchBuildTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	s := NewSynthesizer(path, testInfo)
	s.Prepend([]domain.Event{testEvent("https://x/e1", "First")}, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Save())

	s.TouchBuildTimestamp(time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), "<lastBuildDate>Tue, 02 Jun 2026 00:00:00 +0000</lastBuildDate>")
	assert.Contains(t, string(data), "<title>First</title>", "items untouched")
}
