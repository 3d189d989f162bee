package script

import (
	"fmt"
	"strings"

	"rem/internal/dse"
	"rem/internal/errs"
	"rem/internal/expr"
	"rem/internal/trans"
	"rem/internal/trigger"
	"rem/internal/value"
)

// substCtx carries the context a body substitution needs: the computed
// trigger date and time, today, the current wall-clock minute and the
// translation table.
type substCtx struct {
	ev    *expr.Evaluator
	tab   *trans.Table
	date  int // trigger date serial
	min   int // trigger minute or NoTime
	today int
	now   int
}

// substitute expands the %-escapes and [expr] interpolations of a reminder
// body. It returns the full text and the %"…%" calendar-body region (equal
// to the full text when no region is marked).
func (sc *substCtx) substitute(body string) (string, string, error) {
	var out strings.Builder
	var cal strings.Builder
	inCal := false
	calSeen := false

	y, m, d := dse.ToYMD(sc.date)
	wd := dse.Weekday(sc.date)
	past := sc.date < sc.today

	emit := func(s string) {
		out.WriteString(s)
		if inCal {
			cal.WriteString(s)
		}
	}

	i := 0
	for i < len(body) {
		c := body[i]
		switch c {
		case '[':
			if i+1 < len(body) && body[i+1] == '[' {
				emit("[")
				i += 2
				continue
			}
			next, err := sc.interpolate(body, i, emit)
			if err != nil {
				return "", "", err
			}
			i = next

		case '%':
			if i+1 >= len(body) {
				emit("%")
				i++
				continue
			}
			e := body[i+1]
			if e == '[' {
				// %[expr] is accepted as a synonym for [expr].
				next, err := sc.interpolate(body, i+1, emit)
				if err != nil {
					return "", "", err
				}
				i = next
				continue
			}
			i += 2
			switch e {
			case '%':
				emit("%")
			case '_':
				emit("\n")
			case '"':
				if inCal {
					inCal = false
				} else {
					inCal = true
					calSeen = true
				}
			case 'a', 'A':
				s := fmt.Sprintf("%s, %d %s, %d",
					sc.tr(dse.DayName(wd)), d, sc.tr(dse.MonthName(m)), y)
				if e == 'a' {
					s = sc.tr("on") + " " + s
				}
				emit(s)
			case 'b':
				emit(sc.tr(dse.DayName(wd)))
			case 'u':
				emit(abbrev(sc.tr(dse.DayName(wd))))
			case 'c':
				emit(sc.tr(dse.MonthName(m)))
			case 'C':
				emit(abbrev(sc.tr(dse.MonthName(m))))
			case 'd':
				emit(fmt.Sprintf("%d", d))
			case 'e':
				emit(fmt.Sprintf("%d", m+1))
			case 'f':
				emit(fmt.Sprintf("%d", y))
			case 'v':
				emit(fmt.Sprintf("%02d", y%100))
			case 'w':
				emit(fmt.Sprintf("%d", wd))
			case '1':
				emit(fmt.Sprintf("%d%s", d, expr.OrdinalSuffix(int64(d))))
			case '!':
				if past {
					emit(sc.tr("was"))
				} else {
					emit(sc.tr("is"))
				}
			case 'h', 'j', 'i', 'k', 't', 'x', 'z':
				emit(sc.timeEscape(e))
			default:
				// Unknown escapes pass through unchanged.
				emit("%")
				emit(string(e))
			}

		default:
			emit(string(c))
			i++
		}
	}
	full := out.String()
	if !calSeen {
		return full, full, nil
	}
	return full, cal.String(), nil
}

// interpolate evaluates the [expr] at body[at] and emits its string value;
// it returns the index just past the closing bracket.
func (sc *substCtx) interpolate(body string, at int, emit func(string)) (int, error) {
	if sc.ev == nil {
		return 0, errs.ErrExprDisabled
	}
	node, used, err := expr.Parse(body[at+1:], nil)
	if err != nil {
		return 0, err
	}
	end := at + 1 + used
	if end >= len(body) || body[end] != ']' {
		return 0, errs.ErrMissingEnd
	}
	v, err := sc.ev.Eval(node, nil)
	if err != nil {
		return 0, err
	}
	if err := v.Coerce(value.Str); err != nil {
		return 0, errs.ErrCantCoerce
	}
	emit(v.Str)
	return end + 1, nil
}

// abbrev shortens a translated name to its three-letter form.
func abbrev(s string) string {
	r := []rune(s)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r)
}

func (sc *substCtx) tr(s string) string {
	if sc.tab == nil {
		return s
	}
	return sc.tab.Translate(s)
}

func (sc *substCtx) timeEscape(e byte) string {
	if sc.min == dse.NoTime {
		return ""
	}
	h := sc.min / 60
	mm := sc.min % 60
	switch e {
	case 'h':
		h12 := h % 12
		if h12 == 0 {
			h12 = 12
		}
		return fmt.Sprintf("%d", h12)
	case 'j':
		return fmt.Sprintf("%02d", h)
	case 'i':
		return fmt.Sprintf("%02d", mm)
	case 'k':
		return fmt.Sprintf("%d", mm)
	case 't':
		return sc.tr("at") + " " + dse.TimeString(sc.min)
	case 'x':
		return dse.TimeString(sc.min)
	case 'z':
		delta := dse.DateTime(sc.date, sc.min) - dse.DateTime(sc.today, sc.now)
		return fmt.Sprintf("%+d", delta)
	}
	return ""
}

// substBody is the engine entry point: substitute body against a computed
// trigger, returning full and calendar-body strings.
func (e *Engine) substBody(ev *expr.Evaluator, body string, t *trigger.Trigger, date, min int) (string, string, error) {
	_ = t
	sc := &substCtx{ev: ev, tab: e.Trans, date: date, min: min, today: e.Today, now: e.nowMinute()}
	return sc.substitute(body)
}
