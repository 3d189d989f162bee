package trigger

import (
	"fmt"
	"strconv"
	"strings"

	"rem/internal/dse"
	"rem/internal/errs"
)

// TokenSource yields the tokens of a REM statement with [expr] substitution
// already applied. Implementations must return double-quoted runs as single
// tokens with the quotes stripped. Body returns the remaining raw text once
// the parser has found the reminder-type keyword.
type TokenSource interface {
	Token() (string, error)
	Body() string
}

type kwKind int

const (
	kwNone kwKind = iota
	kwAt
	kwThrough
	kwUntil
	kwFrom
	kwScanfrom
	kwSkip
	kwBefore
	kwAfter
	kwOmit
	kwOmitFunc
	kwSched
	kwWarn
	kwOnce
	kwPriority
	kwTag
	kwInfo
	kwDuration
	kwMaybeUncomputable
	kwNoQueue
	kwAddOmit
	kwBack
	kwDelta
	kwRep
	kwMsg
	kwMsf
	kwRun
	kwCal
	kwSat
	kwSpecial
	kwPS
	kwPSFile
)

var keywords = []struct {
	name string
	min  int
	kind kwKind
}{
	{"AT", 2, kwAt},
	{"THROUGH", 4, kwThrough},
	{"UNTIL", 3, kwUntil},
	{"FROM", 4, kwFrom},
	{"SCANFROM", 4, kwScanfrom},
	{"SKIP", 3, kwSkip},
	{"BEFORE", 3, kwBefore},
	{"AFTER", 3, kwAfter},
	{"OMITFUNC", 5, kwOmitFunc},
	{"OMIT", 4, kwOmit},
	{"SCHED", 5, kwSched},
	{"WARN", 4, kwWarn},
	{"ONCE", 4, kwOnce},
	{"PRIORITY", 4, kwPriority},
	{"TAG", 3, kwTag},
	{"INFO", 4, kwInfo},
	{"DURATION", 3, kwDuration},
	{"MAYBE-UNCOMPUTABLE", 5, kwMaybeUncomputable},
	{"NOQUEUE", 3, kwNoQueue},
	{"ADDOMIT", 4, kwAddOmit},
	{"BACK", 4, kwBack},
	{"DELTA", 5, kwDelta},
	{"REP", 3, kwRep},
	{"MSG", 3, kwMsg},
	{"MSF", 3, kwMsf},
	{"RUN", 3, kwRun},
	{"CAL", 3, kwCal},
	// SATISFY needs four letters: "SAT" is Saturday.
	{"SATISFY", 4, kwSat},
	{"SPECIAL", 7, kwSpecial},
	{"PSFILE", 6, kwPSFile},
	{"PS", 2, kwPS},
}

func matchKeyword(tok string) kwKind {
	up := strings.ToUpper(tok)
	for _, k := range keywords {
		if len(up) >= k.min && len(up) <= len(k.name) && strings.HasPrefix(k.name, up) {
			return k.kind
		}
	}
	return kwNone
}

var monthPrefixes = []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

// matchMonth returns the 0-based month for a month-name token (minimum
// prefix 3) or -1.
func matchMonth(tok string) int {
	up := strings.ToUpper(tok)
	if len(up) < 3 {
		return -1
	}
	for i, m := range monthPrefixes {
		full := strings.ToUpper(dse.MonthName(i))
		if strings.HasPrefix(up, m) && strings.HasPrefix(full, up) {
			return i
		}
	}
	return -1
}

// matchWeekday returns the weekday-mask bit (0 = Monday) for a weekday-name
// token (minimum prefix 3) or -1.
func matchWeekday(tok string) int {
	up := strings.ToUpper(tok)
	if len(up) < 3 {
		return -1
	}
	for wd := 0; wd < 7; wd++ {
		// DayName is Sunday-based; the mask is Monday-based.
		full := strings.ToUpper(dse.DayName((wd + 1) % 7))
		if strings.HasPrefix(full, up) {
			return wd
		}
	}
	return -1
}

// parseTimeToken parses H:MM (hours may exceed 23 when unbounded, for
// DURATION). Returns minutes or -1.
func parseTimeToken(tok string, bounded bool) int {
	i := strings.IndexByte(tok, ':')
	if i <= 0 || i == len(tok)-1 {
		return -1
	}
	h, err1 := strconv.Atoi(tok[:i])
	m, err2 := strconv.Atoi(tok[i+1:])
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 {
		return -1
	}
	if bounded && h > 23 {
		return -1
	}
	return h*60 + m
}

// ParseRem parses a REM statement's trigger specification from ts, up to
// and including the reminder-type keyword. It returns the trigger, the AT
// sub-record and the raw body.
func ParseRem(ts TokenSource) (Trigger, TimeTrig, string, error) {
	t := New()
	tt := NewTimeTrig()
	afterAt := false

	fail := func(err error, tok string) (Trigger, TimeTrig, string, error) {
		if tok != "" {
			return t, tt, "", fmt.Errorf("%w: `%s'", err, tok)
		}
		return t, tt, "", err
	}

	for {
		tok, err := ts.Token()
		if err != nil {
			return t, tt, "", err
		}
		if tok == "" || strings.HasPrefix(tok, "#") || strings.HasPrefix(tok, ";") {
			break
		}

		// Shorthand back/delta/rep.
		if c := tok[0]; c == '+' || c == '-' || c == '*' {
			if err := parseShorthand(&t, &tt, tok, afterAt); err != nil {
				return fail(err, tok)
			}
			continue
		}

		if wd := matchWeekday(tok); wd >= 0 {
			t.Wd |= 1 << wd
			continue
		}
		if m := matchMonth(tok); m >= 0 {
			if t.M != NoMon {
				return fail(errs.ErrRepeated, tok)
			}
			t.M = m
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil && !strings.ContainsAny(tok, ":-") {
			if n >= 1000 {
				if t.Y != NoYr {
					return fail(errs.ErrRepeated, tok)
				}
				if n < dse.BaseYear || n > dse.MaxYear {
					return fail(errs.ErrBadDate, tok)
				}
				t.Y = n
			} else {
				if t.D != NoDay {
					return fail(errs.ErrRepeated, tok)
				}
				if n < 1 || n > 31 {
					return fail(errs.ErrBadDate, tok)
				}
				t.D = n
			}
			continue
		}
		if serial, ok := parseISODate(tok); ok {
			y, m, d := dse.ToYMD(serial)
			if t.D != NoDay || t.M != NoMon || t.Y != NoYr {
				return fail(errs.ErrRepeated, tok)
			}
			t.Y, t.M, t.D = y, m, d
			continue
		}

		switch matchKeyword(tok) {
		case kwAt:
			if tt.Time != NoTime {
				return fail(errs.ErrRepeated, tok)
			}
			timeTok, err := ts.Token()
			if err != nil {
				return t, tt, "", err
			}
			min := parseTimeToken(timeTok, true)
			if min < 0 {
				return fail(errs.ErrBadTime, timeTok)
			}
			tt.Time = min
			afterAt = true

		case kwDuration:
			durTok, err := ts.Token()
			if err != nil {
				return t, tt, "", err
			}
			min := parseTimeToken(durTok, false)
			if min < 0 {
				return fail(errs.ErrBadTime, durTok)
			}
			tt.Duration = min

		case kwUntil, kwThrough:
			if t.Until != NoUntil {
				return fail(errs.ErrRepeated, tok)
			}
			d, err := parseDateSpec(ts)
			if err != nil {
				return fail(err, tok)
			}
			t.Until = d

		case kwFrom:
			if t.From != NoFrom {
				return fail(errs.ErrRepeated, tok)
			}
			d, err := parseDateSpec(ts)
			if err != nil {
				return fail(err, tok)
			}
			t.From = d

		case kwScanfrom:
			if t.ScanFrom != NoScan {
				return fail(errs.ErrRepeated, tok)
			}
			d, err := parseDateSpec(ts)
			if err != nil {
				return fail(err, tok)
			}
			t.ScanFrom = d

		case kwSkip:
			if t.Skip != NoSkip {
				return fail(errs.ErrRepeated, tok)
			}
			t.Skip = SkipSkip
		case kwBefore:
			if t.Skip != NoSkip {
				return fail(errs.ErrRepeated, tok)
			}
			t.Skip = BeforeSkip
		case kwAfter:
			if t.Skip != NoSkip {
				return fail(errs.ErrRepeated, tok)
			}
			t.Skip = AfterSkip

		case kwOmit:
			n := 0
			for {
				wdTok, err := ts.Token()
				if err != nil {
					return t, tt, "", err
				}
				wd := matchWeekday(wdTok)
				if wd < 0 {
					if n == 0 {
						return fail(errs.ErrParse, wdTok)
					}
					// Not a weekday; re-handle in the main loop.
					if reparseErr := reinject(ts, wdTok); reparseErr != nil {
						return fail(errs.ErrParse, wdTok)
					}
					break
				}
				t.LocalOmit |= 1 << wd
				n++
			}

		case kwOmitFunc:
			name, err := ts.Token()
			if err != nil || name == "" {
				return fail(errs.ErrEOLN, "")
			}
			t.OmitFunc = strings.ToLower(name)
		case kwSched:
			name, err := ts.Token()
			if err != nil || name == "" {
				return fail(errs.ErrEOLN, "")
			}
			t.Sched = strings.ToLower(name)
		case kwWarn:
			name, err := ts.Token()
			if err != nil || name == "" {
				return fail(errs.ErrEOLN, "")
			}
			t.Warn = strings.ToLower(name)

		case kwOnce:
			t.Once = true
		case kwNoQueue:
			t.NoQueue = true
		case kwAddOmit:
			t.AddOmit = true
		case kwMaybeUncomputable:
			t.MaybeUncomputable = true

		case kwPriority:
			pTok, err := ts.Token()
			if err != nil {
				return t, tt, "", err
			}
			n, err := strconv.Atoi(pTok)
			if err != nil || n < 0 || n > 9999 {
				return fail(errs.ErrBadNumber, pTok)
			}
			t.Priority = n

		case kwTag:
			tag, err := ts.Token()
			if err != nil || tag == "" {
				return fail(errs.ErrEOLN, "")
			}
			t.Tags = append(t.Tags, tag)

		case kwInfo:
			info, err := ts.Token()
			if err != nil || info == "" {
				return fail(errs.ErrEOLN, "")
			}
			if err := appendInfo(&t, info); err != nil {
				return fail(err, info)
			}

		case kwBack:
			nTok, err := ts.Token()
			if err != nil {
				return t, tt, "", err
			}
			if err := parseShorthand(&t, &tt, "-"+nTok, false); err != nil {
				return fail(err, nTok)
			}
		case kwDelta:
			nTok, err := ts.Token()
			if err != nil {
				return t, tt, "", err
			}
			if err := parseShorthand(&t, &tt, "+"+nTok, false); err != nil {
				return fail(err, nTok)
			}
		case kwRep:
			nTok, err := ts.Token()
			if err != nil {
				return t, tt, "", err
			}
			if err := parseShorthand(&t, &tt, "*"+nTok, afterAt); err != nil {
				return fail(err, nTok)
			}

		case kwMsg:
			t.Typ = Msg
			return finish(t, tt, ts)
		case kwMsf:
			t.Typ = Msf
			return finish(t, tt, ts)
		case kwRun:
			t.Typ = Run
			return finish(t, tt, ts)
		case kwCal:
			t.Typ = Cal
			return finish(t, tt, ts)
		case kwPS:
			t.Typ = PS
			t.Passthru = "PS"
			return finish(t, tt, ts)
		case kwPSFile:
			t.Typ = PSFile
			t.Passthru = "PSFILE"
			return finish(t, tt, ts)
		case kwSat:
			t.Typ = Sat
			return finish(t, tt, ts)
		case kwSpecial:
			t.Typ = Passthru
			pass, err := ts.Token()
			if err != nil || pass == "" {
				return fail(errs.ErrEOLN, "")
			}
			t.Passthru = pass
			return finish(t, tt, ts)

		default:
			return fail(errs.ErrUnknownToken, tok)
		}
	}
	return finish(t, tt, ts)
}

// finish derives the folded duration-day count and hands back the body.
func finish(t Trigger, tt TimeTrig, ts TokenSource) (Trigger, TimeTrig, string, error) {
	if tt.Duration != NoTime && tt.Time != NoTime {
		total := tt.Time + tt.Duration
		if total > 0 {
			t.DurationDays = (total - 1) / dse.MinutesPerDay
		}
	}
	body := ""
	if t.Typ != NoType {
		body = strings.TrimLeft(ts.Body(), " \t")
	}
	return t, tt, body, nil
}

func parseShorthand(t *Trigger, tt *TimeTrig, tok string, afterAt bool) error {
	kind := tok[0]
	rest := tok[1:]
	double := false
	if rest != "" && rest[0] == kind && kind != '*' {
		double = true
		rest = rest[1:]
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return errs.ErrBadNumber
	}
	switch kind {
	case '*':
		if afterAt {
			if tt.Rep != 0 {
				return errs.ErrRepeated
			}
			tt.Rep = n
			return nil
		}
		if t.Rep != NoRep {
			return errs.ErrRepeated
		}
		if n < 1 {
			return errs.ErrBadNumber
		}
		t.Rep = n
	case '+':
		if afterAt {
			if tt.Delta != 0 {
				return errs.ErrRepeated
			}
			tt.Delta = n
			return nil
		}
		if t.Delta != 0 {
			return errs.ErrRepeated
		}
		t.Delta = n
		t.DeltaOmit = !double
	case '-':
		if t.Back != NoBack {
			return errs.ErrRepeated
		}
		if double {
			t.Back = -n
		} else {
			t.Back = n
		}
	}
	return nil
}

// parseDateSpec reads a fully-specified date: a day, a month name and a
// year in any order, or a single ISO date token.
func parseDateSpec(ts TokenSource) (int, error) {
	d, m, y := NoDay, NoMon, NoYr
	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		if err != nil {
			return -1, err
		}
		if tok == "" {
			break
		}
		if serial, ok := parseISODate(tok); ok && i == 0 {
			return serial, nil
		}
		if mm := matchMonth(tok); mm >= 0 {
			m = mm
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			if n >= 1000 {
				y = n
			} else {
				d = n
			}
			continue
		}
		return -1, errs.ErrBadDate
	}
	if d == NoDay || m == NoMon || y == NoYr || !dse.Valid(y, m, d) {
		return -1, errs.ErrBadDate
	}
	return dse.FromYMD(y, m, d), nil
}

func parseISODate(tok string) (int, bool) {
	parts := strings.Split(tok, "-")
	if len(parts) != 3 {
		return 0, false
	}
	y, e1 := strconv.Atoi(parts[0])
	m, e2 := strconv.Atoi(parts[1])
	d, e3 := strconv.Atoi(parts[2])
	if e1 != nil || e2 != nil || e3 != nil || !dse.Valid(y, m-1, d) {
		return 0, false
	}
	return dse.FromYMD(y, m-1, d), true
}

func appendInfo(t *Trigger, info string) error {
	i := strings.IndexByte(info, ':')
	if i <= 0 {
		return errs.ErrParse
	}
	for _, c := range info[:i] {
		if c == ' ' || c == '\t' || c < 0x20 {
			return errs.ErrParse
		}
	}
	for _, existing := range t.Infos {
		j := strings.IndexByte(existing, ':')
		if j == i && strings.EqualFold(existing[:j], info[:i]) {
			return errs.ErrRepeated
		}
	}
	t.Infos = append(t.Infos, info)
	return nil
}

// Pushback support: a TokenSource may optionally implement Unread to give a
// token back (used after the OMIT weekday run).
type unreader interface {
	Unread(tok string)
}

func reinject(ts TokenSource, tok string) error {
	if u, ok := ts.(unreader); ok {
		u.Unread(tok)
		return nil
	}
	return errs.ErrParse
}
