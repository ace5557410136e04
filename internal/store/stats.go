package store

import (
	"fmt"
	"time"

	"schedassist/internal/model"
)

// Report summarises the live schedule: totals plus per-day, per-tag, and
// per-priority counts.
type Report struct {
	Total      int
	Upcoming   int
	Past       int
	Tombstones int

	// ByDay counts events per local calendar day of their start, keyed
	// "2006-01-02".
	ByDay map[string]int

	// ByWeek counts events per ISO week of their start, keyed "2006-W02".
	ByWeek map[string]int

	// ByTag counts tag occurrences across live events.
	ByTag map[string]int

	// ByPriority counts live events per priority label.
	ByPriority map[string]int
}

// Stats computes a schedule report relative to now.
func (s *Store) Stats(now time.Time) Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := Report{
		ByDay:      make(map[string]int),
		ByWeek:     make(map[string]int),
		ByTag:      make(map[string]int),
		ByPriority: make(map[string]int),
	}

	for _, ev := range s.events {
		if ev.Deleted {
			r.Tombstones++
			continue
		}
		r.Total++
		if ev.Start.Before(now) {
			r.Past++
		} else {
			r.Upcoming++
		}

		start := ev.Start.In(now.Location())
		r.ByDay[start.Format("2006-01-02")]++
		year, week := start.ISOWeek()
		r.ByWeek[fmt.Sprintf("%d-W%02d", year, week)]++

		for _, tag := range ev.Tags {
			r.ByTag[tag]++
		}
		if ev.Priority != model.PriorityNone {
			r.ByPriority[ev.Priority.String()]++
		}
	}
	return r
}
