package script

import (
	"sort"

	"rem/internal/dse"
	"rem/internal/errs"
)

// Omit bounds, matching the original's fixed tables.
const (
	maxFullOmits    = 1000
	maxPartialOmits = 366
)

// omitFrame is one omit context: exact dates, month/day partial omits and
// the weekday mask.
type omitFrame struct {
	full    map[int]struct{} // date serials
	partial map[int]struct{} // m*100 + d
	weekday uint8            // bit 0 = Monday
}

func newOmitFrame() *omitFrame {
	return &omitFrame{
		full:    make(map[int]struct{}),
		partial: make(map[int]struct{}),
	}
}

func (f *omitFrame) clone() *omitFrame {
	c := newOmitFrame()
	for k := range f.full {
		c.full[k] = struct{}{}
	}
	for k := range f.partial {
		c.partial[k] = struct{}{}
	}
	c.weekday = f.weekday
	return c
}

// OmitContext is the global omit state with the PUSH-OMIT-CONTEXT stack.
type OmitContext struct {
	cur   *omitFrame
	stack []*omitFrame
}

func NewOmitContext() *OmitContext {
	return &OmitContext{cur: newOmitFrame()}
}

// AddFull registers an exact omitted date.
func (c *OmitContext) AddFull(serial int) error {
	if len(c.cur.full) >= maxFullOmits {
		return errs.Err2ManyFullOmits
	}
	c.cur.full[serial] = struct{}{}
	return nil
}

// AddPartial registers a month/day omit that applies every year.
func (c *OmitContext) AddPartial(m, d int) error {
	if len(c.cur.partial) >= maxPartialOmits {
		return errs.Err2ManyPartialOmits
	}
	c.cur.partial[m*100+d] = struct{}{}
	return nil
}

// AddWeekday adds to the global weekday-omit mask (bit 0 = Monday).
func (c *OmitContext) AddWeekday(bit int) {
	c.cur.weekday |= 1 << bit
}

// WeekdayMask returns the current global weekday-omit mask.
func (c *OmitContext) WeekdayMask() uint8 { return c.cur.weekday }

// IsOmitted reports whether serial is omitted under the current context
// combined with a trigger's local weekday mask.
func (c *OmitContext) IsOmitted(serial int, localomit uint8) bool {
	if (c.cur.weekday|localomit)&(1<<(serial%7)) != 0 {
		return true
	}
	if _, ok := c.cur.full[serial]; ok {
		return true
	}
	_, m, d := dse.ToYMD(serial)
	_, ok := c.cur.partial[m*100+d]
	return ok
}

// Push snapshots the context (PUSH-OMIT-CONTEXT).
func (c *OmitContext) Push() {
	c.stack = append(c.stack, c.cur.clone())
}

// Pop restores the latest snapshot (POP-OMIT-CONTEXT).
func (c *OmitContext) Pop() error {
	if len(c.stack) == 0 {
		return errs.ErrPopNoPush
	}
	c.cur = c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return nil
}

// Clear wipes the current context (CLEAR-OMIT-CONTEXT).
func (c *OmitContext) Clear() {
	c.cur = newOmitFrame()
}

// Reset drops everything including pushed frames; used at the top of each
// iteration.
func (c *OmitContext) Reset() {
	c.cur = newOmitFrame()
	c.stack = nil
}

// UnmatchedPushes reports pending PUSH-OMIT-CONTEXT frames.
func (c *OmitContext) UnmatchedPushes() int { return len(c.stack) }

// FullOmits returns the exact omitted dates, sorted.
func (c *OmitContext) FullOmits() []int {
	out := make([]int, 0, len(c.cur.full))
	for d := range c.cur.full {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
