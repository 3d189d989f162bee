// Package queue implements the timed-reminder queue and the daemon that
// fires each reminder at its scheduled minute, speaks the line-based control
// protocol and reloads when the source file changes.
package queue

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"rem/internal/dse"
	"rem/internal/trigger"
	"rem/internal/value"
)

// NoTime marks a dead queue entry.
const NoTime = dse.NoTime

// Entry is one queued timed reminder: a copy of its trigger and AT record
// plus the un-substituted body and its origin.
type Entry struct {
	QID  string
	Trig trigger.Trigger
	Tim  trigger.TimeTrig
	Body string
	File string
	Line int

	NextTime  int // minutes past midnight; NoTime when expired
	firedOnce bool
	lastAbs   int // last absolute fire time, base for sched() deltas
	schedRuns int
}

// Hooks connects the queue to the engine without an import cycle.
type Hooks struct {
	// Subst substitutes a body for emission.
	Subst func(body string, t *trigger.Trigger, date, min int) (string, error)
	// CallSched invokes a user sched() function; run counts calls per entry.
	CallSched func(name string, run int) (value.Value, error)
	// RunCmd executes a RUN-type body.
	RunCmd func(cmd string) error
	// Translate resolves the TRANSLATE protocol command.
	Translate func(s string) (string, bool)
	// TranslateAll dumps the translation table as pairs.
	TranslateAll func() [][2]string
}

// Queue holds the entries whose AT time is still to come today.
type Queue struct {
	Entries  []*Entry
	Out      io.Writer
	Err      io.Writer
	Hooks    Hooks
	JSONMode bool
	MaxLate  int  // $MaxLateMinutes
	TestMode bool // pins qids to a fixed token for byte-stable output
	Now      func() time.Time
}

// New returns an empty queue writing to out.
func New(out, errw io.Writer) *Queue {
	return &Queue{Out: out, Err: errw, MaxLate: 10, Now: time.Now}
}

// Add copies a trigger into the queue.
func (q *Queue) Add(t trigger.Trigger, tt trigger.TimeTrig, body, file string, line int) {
	e := &Entry{
		QID:      uuid.NewString(),
		Trig:     t,
		Tim:      tt,
		Body:     body,
		File:     file,
		Line:     line,
		NextTime: NoTime,
		lastAbs:  tt.Time,
	}
	if q.TestMode {
		e.QID = "<qid>"
	}
	q.Entries = append(q.Entries, e)
}

// NQueued counts live entries.
func (q *Queue) NQueued() int {
	n := 0
	for _, e := range q.Entries {
		if e.NextTime != NoTime {
			n++
		}
	}
	return n
}

// nowMinute returns the current minute of day.
func (q *Queue) nowMinute() int {
	t := q.Now()
	return t.Hour()*60 + t.Minute()
}

// nowSerial returns today's date serial.
func (q *Queue) nowSerial() int {
	return dse.FromTime(q.Now())
}

// InitTimes computes every entry's first NextTime, strictly after start.
func (q *Queue) InitTimes(start int) {
	for _, e := range q.Entries {
		e.NextTime = q.calcNext(e, start)
	}
}

// calcNext computes the entry's next fire minute strictly greater than
// prev, or NoTime when the entry is exhausted for today.
func (q *Queue) calcNext(e *Entry, prev int) int {
	if e.Trig.Sched != "" && q.Hooks.CallSched != nil {
		return q.calcSched(e, prev)
	}
	return defaultNext(e.Tim, prev)
}

// defaultNext implements the built-in schedule: (ttime - delta) stepped by
// rep up to ttime itself.
func defaultNext(tt trigger.TimeTrig, prev int) int {
	if tt.Time == NoTime {
		return NoTime
	}
	start := tt.Time
	if tt.Delta > 0 {
		start = tt.Time - tt.Delta
		if start < 0 {
			start = 0
		}
	}
	if start > prev {
		return start
	}
	if tt.Rep > 0 {
		k := (prev-start)/tt.Rep + 1
		c := start + k*tt.Rep
		if c <= tt.Time && c > prev {
			return c
		}
	}
	if tt.Time > prev {
		return tt.Time
	}
	return NoTime
}

// calcSched runs the user scheduler. A TIME return is absolute; an INT is a
// delta from the last absolute time. A result not after the previous one
// kills the entry.
func (q *Queue) calcSched(e *Entry, prev int) int {
	e.schedRuns++
	v, err := q.Hooks.CallSched(e.Trig.Sched, e.schedRuns)
	if err != nil {
		return defaultNext(e.Tim, prev)
	}
	var next int
	switch v.Type {
	case value.Time:
		next = int(v.Int)
	case value.Int:
		base := e.lastAbs
		if base == NoTime {
			base = e.Tim.Time
		}
		next = base + int(v.Int)
	default:
		return defaultNext(e.Tim, prev)
	}
	if next < 0 {
		next = 0
	}
	if next > dse.MinutesPerDay-1 {
		next = dse.MinutesPerDay - 1
	}
	if next <= prev {
		return NoTime
	}
	e.lastAbs = next
	return next
}

// NextFire returns the entry with the smallest live NextTime, honoring
// insertion order on ties.
func (q *Queue) NextFire() *Entry {
	var best *Entry
	for _, e := range q.Entries {
		if e.NextTime == NoTime {
			continue
		}
		if best == nil || e.NextTime < best.NextTime {
			best = e
		}
	}
	return best
}

// FireDue emits every entry due at minute now. An entry more than one
// minute late still fires if it has never fired and is within MaxLate
// minutes of its AT time.
func (q *Queue) FireDue(now int) {
	for _, e := range q.Entries {
		if e.NextTime == NoTime || e.NextTime > now {
			continue
		}
		late := now - e.NextTime
		if late > 1 {
			if e.firedOnce || e.Tim.Time == NoTime || now-e.Tim.Time > q.MaxLate {
				e.NextTime = q.calcNext(e, now)
				continue
			}
		}
		q.emit(e, now)
		e.firedOnce = true
		e.NextTime = q.calcNext(e, now)
	}
}

// Delete removes the entry with the given qid; it reports success.
func (q *Queue) Delete(qid string) bool {
	for i, e := range q.Entries {
		if e.QID == qid {
			q.Entries = append(q.Entries[:i], q.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// emit frames and prints one fired reminder.
func (q *Queue) emit(e *Entry, now int) {
	body := e.Body
	if q.Hooks.Subst != nil {
		if s, err := q.Hooks.Subst(e.Body, &e.Trig, q.nowSerial(), e.Tim.Time); err == nil {
			body = s
		}
	}
	if e.Trig.Typ == trigger.Run {
		if q.Hooks.RunCmd != nil {
			if err := q.Hooks.RunCmd(body); err != nil {
				fmt.Fprintf(q.Err, "%s(%d): %v\n", e.File, e.Line, err)
			}
		}
		return
	}
	if q.JSONMode {
		obj := map[string]any{
			"response": "reminder",
			"qid":      e.QID,
			"ttime":    dse.TimeString(e.Tim.Time),
			"now":      dse.TimeString(now),
			"tags":     e.Trig.TagString(),
			"body":     body,
		}
		if len(e.Trig.Infos) > 0 {
			obj["info"] = e.Trig.Infos
		}
		writeJSONLine(q.Out, obj)
		return
	}
	fmt.Fprintf(q.Out, "NOTE reminder %s %s %s\n", dse.TimeString(e.Tim.Time), dse.TimeString(now), e.Trig.TagString())
	fmt.Fprintln(q.Out, body)
	fmt.Fprintln(q.Out, "NOTE endreminder")
}
