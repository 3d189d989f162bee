// Package trigger implements the REM statement parser and the trigger-date
// solver: given today's date serial and a parsed trigger, it computes the
// next matching date honoring BACK, DELTA, SKIP, REP, OMIT, UNTIL and
// multi-day durations.
package trigger

import (
	"strings"

	"rem/internal/dse"
)

// Sentinels for absent trigger facets.
const (
	NoDay   = -1
	NoMon   = -1
	NoYr    = -1
	NoWd    = 0 // empty weekday mask
	NoBack  = -(1 << 30)
	NoRep   = 0
	NoUntil = -1
	NoFrom  = -1
	NoScan  = -1
	NoTime  = dse.NoTime
)

// Skip kinds.
type Skip int

const (
	NoSkip Skip = iota
	SkipSkip
	BeforeSkip
	AfterSkip
)

// Body types.
type Type int

const (
	NoType Type = iota
	Msg
	Msf
	Run
	Cal
	Sat
	PS
	PSFile
	Passthru
)

func (t Type) String() string {
	switch t {
	case Msg:
		return "MSG"
	case Msf:
		return "MSF"
	case Run:
		return "RUN"
	case Cal:
		return "CAL"
	case Sat:
		return "SATISFY"
	case PS:
		return "PS"
	case PSFile:
		return "PSFILE"
	case Passthru:
		return "SPECIAL"
	}
	return "NONE"
}

// TimeTrig is the AT sub-record. Times are minutes past midnight; Delta is
// the advance-warning window, Rep the repeat period (both minutes).
type TimeTrig struct {
	Time     int
	NextTime int
	Delta    int
	Rep      int
	Duration int
}

// NewTimeTrig returns an empty AT record.
func NewTimeTrig() TimeTrig {
	return TimeTrig{Time: NoTime, NextTime: NoTime, Duration: NoTime}
}

// Trigger holds every facet of a REM statement that affects date
// computation and downstream formatting.
type Trigger struct {
	Wd        uint8 // weekday mask, bit 0 = Monday
	D, M, Y   int   // day 1..31, month 0..11, year >= BaseYear
	Back      int
	Delta     int  // advance-window days
	DeltaOmit bool // true when the window counts only non-omitted days
	Rep       int
	LocalOmit uint8
	Skip      Skip
	Until     int
	From      int
	ScanFrom  int
	Once      bool
	Priority  int
	Tags      []string
	Infos     []string // "Header: Value", ordered
	Passthru  string

	Typ          Type
	DurationDays int

	EventStart    int64 // original AT as a datetime, when adjusted
	EventDuration int   // original DURATION in minutes

	MaybeUncomputable bool
	AddOmit           bool
	NoQueue           bool

	Sched    string // user function names
	Warn     string
	OmitFunc string

	Expired bool
}

// New returns a trigger with every facet unset and the default priority.
func New() Trigger {
	return Trigger{
		D: NoDay, M: NoMon, Y: NoYr, Wd: NoWd,
		Back: NoBack, Rep: NoRep,
		Until: NoUntil, From: NoFrom, ScanFrom: NoScan,
		Priority:      DefaultPriority,
		EventStart:    -1,
		EventDuration: NoTime,
	}
}

// DefaultPriority is the priority of a REM with no PRIORITY clause.
const DefaultPriority = 5000

// TagString joins the tags with commas for output records; an empty set is
// rendered as "*".
func (t *Trigger) TagString() string {
	if len(t.Tags) == 0 {
		return "*"
	}
	return strings.Join(t.Tags, ",")
}

// FindInfo returns the value of the info entry with the given header,
// case-insensitively.
func (t *Trigger) FindInfo(header string) (string, bool) {
	for _, in := range t.Infos {
		i := strings.IndexByte(in, ':')
		if i < 0 {
			continue
		}
		if strings.EqualFold(in[:i], header) {
			return strings.TrimSpace(in[i+1:]), true
		}
	}
	return "", false
}

// wdMatch reports whether the serial's weekday is in the mask.
func wdMatch(mask uint8, serial int) bool {
	return mask&(1<<(serial%7)) != 0
}

// advanceToWd moves serial forward to the next day in the mask.
func advanceToWd(serial int, mask uint8) int {
	for !wdMatch(mask, serial) {
		serial++
	}
	return serial
}
