// Package extract turns raw page HTML into event records using configured
// CSS selectors. Extraction is heuristic by nature: per-record failures are
// collected as warnings and returned to the caller instead of being logged
// from inside parsing logic, and never abort a run.
package extract

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"regwatch/pkg/domain"
)

// ancestor search depth for selector lookups around a registration link
const maxAncestorLevels = 6

// Config holds the selectors and the source address for the extractor
type Config struct {
	BaseURL       string // target page address, used to resolve relative links
	LinkSelector  string // matches registration anchors
	TitleSelector string // matches the event title near the anchor, e.g. "h5.headline"
	DateSelector  string // matches the deadline text near the anchor, e.g. "time, .date"
}

// Extractor extracts event records from page HTML
type Extractor struct {
	cfg       Config
	base      *url.URL
	sanitizer *bluemonday.Policy
}

// New creates an extractor for the given source address and selectors.
func New(cfg Config) (*Extractor, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, err)
	}
	return &Extractor{cfg: cfg, base: base, sanitizer: bluemonday.UGCPolicy()}, nil
}

// Events extracts all event records from the page. Anchors that cannot be
// turned into a record are skipped and reported in the warnings slice.
// Records are returned in document order, deduplicated by identifier.
func (e *Extractor) Events(r io.Reader) ([]domain.Event, []domain.Warning, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse page HTML: %w", err)
	}

	var events []domain.Event
	var warnings []domain.Warning
	seen := map[string]struct{}{}

	doc.Find(e.cfg.LinkSelector).Each(func(i int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			warnings = append(warnings, domain.Warning{
				Ref:    fmt.Sprintf("anchor #%d (%s)", i, strings.TrimSpace(a.Text())),
				Reason: "registration link has no href",
			})
			return
		}

		ev := e.eventFromAnchor(a, href)
		if _, dup := seen[ev.ID]; dup {
			return
		}
		seen[ev.ID] = struct{}{}
		events = append(events, ev)
	})

	return events, warnings, nil
}

// Normalize resolves a possibly relative reference against the source
// address and strips query string and fragment, yielding the canonical
// identifier. It never fails: malformed input degrades to a best-effort
// textual strip so the same input always maps to the same identifier.
func (e *Extractor) Normalize(ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			ref = ref[:i]
		}
		return ref
	}

	abs := e.base.ResolveReference(u)
	abs.RawQuery = ""
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String()
}

// eventFromAnchor builds an event record from one registration anchor using
// the configured selectors first and positional heuristics as fallbacks.
func (e *Extractor) eventFromAnchor(a *goquery.Selection, href string) domain.Event {
	link := e.Normalize(href)

	title := ""
	if el := findInAncestors(a, e.cfg.TitleSelector); el != nil {
		title = strings.TrimSpace(el.Text())
	}
	if title == "" {
		// nearby heading inside the same block
		if el := findInAncestorChildren(a, "h1, h2, h3, h4, h5"); el != nil {
			title = strings.TrimSpace(el.Text())
		}
	}
	if title == "" {
		// last resort: closest preceding heading in the document
		if el := findPreceding(a, "h1, h2, h3, h4, h5"); el != nil {
			title = strings.TrimSpace(el.Text())
		}
	}

	date := ""
	if el := findInAncestors(a, e.cfg.DateSelector); el != nil {
		date = strings.TrimSpace(el.Text())
	}
	if date == "" {
		if el := findPreceding(a, "time"); el != nil {
			date = strings.TrimSpace(el.Text())
		}
	}
	if date == "" {
		if el := findPreceding(a, ".date"); el != nil {
			date = strings.TrimSpace(el.Text())
		}
	}

	description := ""
	parent := a.Parent()
	if parent.Length() > 0 {
		parent.ChildrenFiltered("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
			if txt := strings.TrimSpace(p.Text()); txt != "" {
				description = txt
				return false
			}
			return true
		})
	}
	if description == "" {
		if el := findPreceding(a, "p"); el != nil {
			description = strings.TrimSpace(el.Text())
		}
	}
	description = e.cleanDescription(description, date)

	// final fallbacks keep every record usable as a feed item
	if title == "" {
		title = link
	}
	if description == "" {
		if date != "" {
			description = "Event: " + title
		} else {
			description = title
		}
	}

	return domain.Event{
		ID:           link,
		Title:        title,
		DeadlineText: date,
		Link:         link,
		Description:  description,
	}
}

// cleanDescription strips boilerplate and makes sure the deadline is spelled
// out in a recognizable form, since the feed description is where the
// recovery path looks for it.
func (e *Extractor) cleanDescription(desc, date string) string {
	desc = strings.TrimSpace(strings.ReplaceAll(desc, "Find out more and register now", ""))

	if date != "" {
		switch {
		case desc == "":
			desc = "Deadline: " + date
		case !strings.Contains(desc, "Deadline:"):
			desc = desc + "\n\nDeadline: " + date
		}
	}

	if desc == "" {
		return ""
	}
	return e.sanitizer.Sanitize(desc)
}

// findInAncestors searches the selector inside the element itself and then
// inside each ancestor, up to maxAncestorLevels, returning the first match.
func findInAncestors(sel *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return nil
	}
	cur := sel
	for level := 0; level < maxAncestorLevels; level++ {
		if cur.Length() == 0 || cur.Is("html") || cur.Is("body") {
			break
		}
		if found := cur.Find(selector).First(); found.Length() > 0 {
			return found
		}
		cur = cur.Parent()
	}
	return nil
}

// findInAncestorChildren looks for the selector among the direct children of
// each ancestor, nearest first.
func findInAncestorChildren(sel *goquery.Selection, selector string) *goquery.Selection {
	cur := sel.Parent()
	for level := 0; level < maxAncestorLevels; level++ {
		if cur.Length() == 0 || cur.Is("html") || cur.Is("body") {
			break
		}
		found := (*goquery.Selection)(nil)
		cur.ChildrenFiltered(selector).EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if strings.TrimSpace(c.Text()) != "" {
				found = c
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
		cur = cur.Parent()
	}
	return nil
}

// findPreceding approximates a reverse document-order search: it walks the
// previous siblings of the element and of each ancestor, nearest first, and
// matches either the sibling itself or something inside it.
func findPreceding(sel *goquery.Selection, selector string) *goquery.Selection {
	cur := sel
	for level := 0; level < maxAncestorLevels; level++ {
		for sib := cur.Prev(); sib.Length() > 0; sib = sib.Prev() {
			if sib.Is(selector) && strings.TrimSpace(sib.Text()) != "" {
				return sib
			}
			if found := sib.Find(selector).Last(); found.Length() > 0 && strings.TrimSpace(found.Text()) != "" {
				return found
			}
		}
		cur = cur.Parent()
		if cur.Length() == 0 || cur.Is("html") || cur.Is("body") {
			break
		}
	}
	return nil
}
