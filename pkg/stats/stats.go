// Package stats derives descriptive and time-series metrics from the ledger
// and the dedup store. Computation is a pure function of its inputs and the
// supplied now; nothing here reads the wall clock or carries state across
// runs.
package stats

import (
	"math"
	"sort"
	"time"

	"regwatch/pkg/deadline"
	"regwatch/pkg/domain"
)

// list sections are capped to keep the rendered page readable
const maxListed = 10

// thresholds for the derived sections, in days
const (
	weekDays        = 7
	monthDays       = 30
	longRunningDays = 60
	trendMonths     = 12
)

// Snapshot is the fully derived statistics artifact, recomputed each run
type Snapshot struct {
	GeneratedAt       time.Time          `json:"generated_at"`
	TotalTracked      int                `json:"total_events_tracked"`
	CurrentlyActive   int                `json:"currently_active"`
	TotalExpired      int                `json:"total_expired"`
	NewThisWeek       int                `json:"new_this_week"`
	NewThisMonth      int                `json:"new_this_month"`
	ExpiredThisWeek   int                `json:"expired_this_week"`
	ExpiredThisMonth  int                `json:"expired_this_month"`
	SeenIdentifiers   int                `json:"seen_identifiers"`
	LastChecked       *time.Time         `json:"last_checked"`
	DurationStats     *Distribution      `json:"registration_duration_stats,omitempty"`
	ActiveAges        *Distribution      `json:"active_event_ages,omitempty"`
	Velocity          *Velocity          `json:"event_velocity,omitempty"`
	UpcomingDeadlines []UpcomingDeadline `json:"upcoming_deadlines"`
	RecentlyExpired   []ExpiredEvent     `json:"recently_expired"`
	LongRunning       []LongRunningEvent `json:"long_running_events"`
	MonthlyTrends     []MonthTrend       `json:"monthly_trends"`
}

// Distribution summarizes a set of day counts
type Distribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Mean   float64 `json:"average"`
	Count  int     `json:"count"`
}

// Velocity is the discovery rate over the tracked span. Rates are omitted
// until at least a week of data exists, to avoid misleading extrapolations.
type Velocity struct {
	PerWeek          *float64 `json:"events_per_week"`
	PerMonth         *float64 `json:"events_per_month"`
	TrackingDays     float64  `json:"tracking_days"`
	InsufficientData bool     `json:"insufficient_data,omitempty"`
}

// UpcomingDeadline is an active event closing within the next 30 days
type UpcomingDeadline struct {
	Title         string  `json:"title"`
	DeadlineText  string  `json:"deadline"`
	DaysRemaining float64 `json:"days_remaining"`
	Link          string  `json:"link"`
}

// ExpiredEvent is an event that expired within the last 7 days
type ExpiredEvent struct {
	Title            string    `json:"title"`
	DeadlineText     string    `json:"deadline"`
	ExpiredAt        time.Time `json:"expired_at"`
	Link             string    `json:"link"`
	RegistrationDays *float64  `json:"registration_duration_days"`
}

// LongRunningEvent is an event that has stayed active beyond 60 days
type LongRunningEvent struct {
	Title        string  `json:"title"`
	DeadlineText string  `json:"deadline"`
	DaysActive   float64 `json:"days_active"`
	Link         string  `json:"link"`
}

// MonthTrend is one bucket of the trailing discovery histogram
type MonthTrend struct {
	Month       string `json:"month"` // YYYY-MM
	EventsAdded int    `json:"events_added"`
}

// Ledger is the subset of the lifecycle ledger the aggregator derives from
type Ledger interface {
	All() []*domain.LedgerEntry
}

// DedupInfo is the subset of the dedup store included in the snapshot
type DedupInfo interface {
	Len() int
	LastChecked() *time.Time
}

// Compute derives the full statistics snapshot from the ledger and dedup
// store. All windows are relative to the supplied now.
func Compute(ledger Ledger, dedup DedupInfo, now time.Time) *Snapshot {
	s := &Snapshot{
		GeneratedAt:       now,
		SeenIdentifiers:   dedup.Len(),
		LastChecked:       dedup.LastChecked(),
		UpcomingDeadlines: []UpcomingDeadline{},
		RecentlyExpired:   []ExpiredEvent{},
		LongRunning:       []LongRunningEvent{},
		MonthlyTrends:     []MonthTrend{},
	}

	weekAgo := now.Add(-weekDays * 24 * time.Hour)
	monthAgo := now.Add(-monthDays * 24 * time.Hour)

	var durations, activeAges []float64
	monthlyCounts := map[string]int{}
	var oldestFirstSeen time.Time

	entries := ledger.All()
	s.TotalTracked = len(entries)

	for _, e := range entries {
		if oldestFirstSeen.IsZero() || e.FirstSeen.Before(oldestFirstSeen) {
			oldestFirstSeen = e.FirstSeen
		}
		monthlyCounts[e.FirstSeen.UTC().Format("2006-01")]++

		if !e.FirstSeen.Before(weekAgo) {
			s.NewThisWeek++
		}
		if !e.FirstSeen.Before(monthAgo) {
			s.NewThisMonth++
		}

		if e.Expired() {
			s.TotalExpired++
			if !e.ExpiredAt.Before(weekAgo) {
				s.ExpiredThisWeek++
				s.RecentlyExpired = append(s.RecentlyExpired, ExpiredEvent{
					Title:            e.Title,
					DeadlineText:     e.DeadlineText,
					ExpiredAt:        *e.ExpiredAt,
					Link:             e.Link,
					RegistrationDays: e.RegistrationDays,
				})
			}
			if !e.ExpiredAt.Before(monthAgo) {
				s.ExpiredThisMonth++
			}
			if e.RegistrationDays != nil {
				durations = append(durations, *e.RegistrationDays)
			}
			continue
		}

		s.CurrentlyActive++
		age := round1(e.AgeDays(now))
		activeAges = append(activeAges, age)

		if age > longRunningDays {
			s.LongRunning = append(s.LongRunning, LongRunningEvent{
				Title:        e.Title,
				DeadlineText: e.DeadlineText,
				DaysActive:   age,
				Link:         e.Link,
			})
		}

		if due, ok := deadline.Parse(e.DeadlineText); ok {
			daysUntil := due.Sub(now).Hours() / 24
			if daysUntil > 0 && daysUntil <= monthDays {
				s.UpcomingDeadlines = append(s.UpcomingDeadlines, UpcomingDeadline{
					Title:         e.Title,
					DeadlineText:  e.DeadlineText,
					DaysRemaining: round1(daysUntil),
					Link:          e.Link,
				})
			}
		}
	}

	s.DurationStats = distribution(durations)
	s.ActiveAges = distribution(activeAges)
	s.Velocity = velocity(len(entries), oldestFirstSeen, now)

	sort.Slice(s.UpcomingDeadlines, func(i, j int) bool {
		return s.UpcomingDeadlines[i].DaysRemaining < s.UpcomingDeadlines[j].DaysRemaining
	})
	sort.Slice(s.RecentlyExpired, func(i, j int) bool {
		return s.RecentlyExpired[i].ExpiredAt.After(s.RecentlyExpired[j].ExpiredAt)
	})
	sort.Slice(s.LongRunning, func(i, j int) bool {
		return s.LongRunning[i].DaysActive > s.LongRunning[j].DaysActive
	})
	s.UpcomingDeadlines = capList(s.UpcomingDeadlines)
	s.RecentlyExpired = capList(s.RecentlyExpired)
	s.LongRunning = capList(s.LongRunning)

	// trailing histogram, oldest month first for charting
	months := make([]string, 0, len(monthlyCounts))
	for m := range monthlyCounts {
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	if len(months) > trendMonths {
		months = months[:trendMonths]
	}
	for i := len(months) - 1; i >= 0; i-- {
		s.MonthlyTrends = append(s.MonthlyTrends, MonthTrend{Month: months[i], EventsAdded: monthlyCounts[months[i]]})
	}

	return s
}

// distribution summarizes values; nil when there is nothing to summarize.
// Median is the upper middle element, matching the historical artifact.
func distribution(values []float64) *Distribution {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return &Distribution{
		Min:    round1(sorted[0]),
		Max:    round1(sorted[len(sorted)-1]),
		Median: round1(sorted[len(sorted)/2]),
		Mean:   round1(sum / float64(len(sorted))),
		Count:  len(sorted),
	}
}

// velocity computes discovery rates over the tracked span, guarded against
// a near-zero span
func velocity(total int, oldest, now time.Time) *Velocity {
	if total == 0 || oldest.IsZero() {
		return nil
	}

	trackingDays := now.Sub(oldest).Hours() / 24
	v := &Velocity{TrackingDays: round1(trackingDays)}
	if trackingDays < weekDays {
		v.InsufficientData = true
		return v
	}

	perWeek := round2(float64(total) / (trackingDays / weekDays))
	perMonth := round2(float64(total) / (trackingDays / monthDays))
	v.PerWeek = &perWeek
	v.PerMonth = &perMonth
	return v
}

func capList[T any](list []T) []T {
	if len(list) > maxListed {
		return list[:maxListed]
	}
	return list
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
