package script

import (
	"sort"

	"rem/internal/trigger"
)

// Sort directions configured through $SortByDate / $SortByTime / $SortByPrio.
const (
	SortNone = 0
	SortAsc  = 1
	SortDesc = 2
)

// sortEntry is one buffered reminder awaiting ordered emission.
type sortEntry struct {
	date int
	min  int
	prio int
	text string
	typ  trigger.Type
	seq  int // file order, breaks ties
}

// SortBuffer collects the day's triggered reminders and re-emits them
// ordered by the configured (date, time, priority) tuple.
type SortBuffer struct {
	byDate int
	byTime int
	byPrio int
	items  []sortEntry
}

func NewSortBuffer(byDate, byTime, byPrio int) *SortBuffer {
	return &SortBuffer{byDate: byDate, byTime: byTime, byPrio: byPrio}
}

// Add buffers one reminder.
func (sb *SortBuffer) Add(date, min, prio int, text string, typ trigger.Type) {
	sb.items = append(sb.items, sortEntry{date: date, min: min, prio: prio, text: text, typ: typ, seq: len(sb.items)})
}

func cmpDir(a, b, dir int) int {
	if a == b {
		return 0
	}
	less := a < b
	if dir == SortDesc {
		less = !less
	}
	if less {
		return -1
	}
	return 1
}

// Drain sorts the buffer stably and returns the texts in emission order.
func (sb *SortBuffer) Drain() []string {
	items := sb.items
	sb.items = nil
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if sb.byDate != SortNone {
			if c := cmpDir(a.date, b.date, sb.byDate); c != 0 {
				return c < 0
			}
		}
		if sb.byTime != SortNone {
			// Untimed reminders sort after timed ones.
			at, bt := a.min, b.min
			if at < 0 {
				at = 1 << 30
			}
			if bt < 0 {
				bt = 1 << 30
			}
			if c := cmpDir(at, bt, sb.byTime); c != 0 {
				return c < 0
			}
		}
		if sb.byPrio != SortNone {
			if c := cmpDir(a.prio, b.prio, sb.byPrio); c != 0 {
				return c < 0
			}
		}
		return a.seq < b.seq
	})
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.text
	}
	return out
}
