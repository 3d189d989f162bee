package trigger

import (
	"rem/internal/dse"
	"rem/internal/errs"
)

// TrigAttempts bounds the outer compute loop.
const TrigAttempts = 500

// Env supplies the omit machinery to the solver. OmitCheck must combine the
// global omit context, the trigger's local weekday mask and its OMITFUNC.
type Env interface {
	OmitCheck(serial int, localomit uint8, omitfunc string) (bool, error)
	MaxSatIter() int
	WeekdayOmits() uint8
}

const (
	gotDay = 1 << iota
	gotMon
	gotYr
	gotWd
)

// nextSimpleTrig computes the next date satisfying only the static facets
// (weekday mask, day, month, year), ignoring back/rep/skip. It returns -1
// for an expired trigger. As a special case a fully-specified d/m/y date is
// returned even when expired, so REP can advance from it.
func nextSimpleTrig(startdate int, t *Trigger) (int, error) {
	typ := 0
	if t.D != NoDay {
		typ |= gotDay
	}
	if t.M != NoMon {
		typ |= gotMon
	}
	if t.Y != NoYr {
		typ |= gotYr
	}
	if t.Wd != NoWd {
		typ |= gotWd
	}
	y, m, d := dse.ToYMD(startdate)

	switch typ {
	case 0:
		return startdate, nil

	case gotWd:
		return advanceToWd(startdate, t.Wd), nil

	case gotDay:
		if d > t.D {
			m++
			if m == 12 {
				m = 0
				y++
			}
		}
		for t.D > dse.DaysInMonth(m, y) {
			m++
			if m == 12 {
				m = 0
				y++
			}
		}
		return dse.FromYMD(y, m, t.D), nil

	case gotMon:
		if m == t.M {
			return startdate, nil
		}
		if m > t.M {
			return dse.FromYMD(y+1, t.M, 1), nil
		}
		return dse.FromYMD(y, t.M, 1), nil

	case gotYr:
		if y == t.Y {
			return startdate, nil
		}
		if y < t.Y {
			return dse.FromYMD(t.Y, 0, 1), nil
		}
		return -1, nil

	case gotDay + gotMon:
		if t.D > 29 && t.D > dse.DaysInMonth(t.M, 2000) {
			return -1, errs.ErrBadDate
		}
		if t.M == 1 && t.D > 29 {
			return -1, errs.ErrBadDate
		}
		if m > t.M || (m == t.M && d > t.D) {
			y++
		}
		for t.D > dse.DaysInMonth(t.M, y) {
			y++
		}
		return dse.FromYMD(y, t.M, t.D), nil

	case gotDay + gotYr:
		if y < t.Y {
			return dse.FromYMD(t.Y, 0, t.D), nil
		}
		if y > t.Y {
			return -1, nil
		}
		if d > t.D {
			m++
			if m == 12 {
				return -1, nil
			}
		}
		for t.D > dse.DaysInMonth(m, t.Y) {
			m++
			if m == 12 {
				return -1, nil
			}
		}
		return dse.FromYMD(t.Y, m, t.D), nil

	case gotMon + gotYr:
		if y > t.Y || (y == t.Y && m > t.M) {
			return -1, nil
		}
		if y < t.Y {
			return dse.FromYMD(t.Y, t.M, 1), nil
		}
		if m == t.M {
			return startdate, nil
		}
		return dse.FromYMD(t.Y, t.M, 1), nil

	case gotDay + gotMon + gotYr:
		if t.D > dse.DaysInMonth(t.M, t.Y) {
			return -1, errs.ErrBadDate
		}
		return dse.FromYMD(t.Y, t.M, t.D), nil

	case gotYr + gotWd:
		if y > t.Y {
			return -1, nil
		}
		j := startdate
		if y < t.Y {
			j = dse.FromYMD(t.Y, 0, 1)
		}
		j = advanceToWd(j, t.Wd)
		if yearOf(j) > t.Y {
			return -1, nil
		}
		return j, nil

	case gotMon + gotWd:
		if m == t.M {
			j := advanceToWd(startdate, t.Wd)
			if monthOf(j) == t.M {
				return j, nil
			}
		}
		var j int
		if m >= t.M {
			j = dse.FromYMD(y+1, t.M, 1)
		} else {
			j = dse.FromYMD(y, t.M, 1)
		}
		return advanceToWd(j, t.Wd), nil

	case gotDay + gotWd:
		// Walk forward through months until one contains the day, then
		// advance to the matching weekday.
		if m != 0 || y > dse.BaseYear {
			m2, y2 := m-1, y
			if m2 < 0 {
				y2 = y - 1
				m2 = 11
			}
			if t.D <= dse.DaysInMonth(m2, y2) {
				j := advanceToWd(dse.FromYMD(y2, m2, t.D), t.Wd)
				if j >= startdate {
					return j, nil
				}
			}
		}
		if t.D <= dse.DaysInMonth(m, y) {
			j := advanceToWd(dse.FromYMD(y, m, t.D), t.Wd)
			if j >= startdate {
				return j, nil
			}
		}
		m2 := m + 1
		if m2 > 11 {
			m2 = 0
			y++
		}
		for t.D > dse.DaysInMonth(m2, y) {
			m2++
		}
		return advanceToWd(dse.FromYMD(y, m2, t.D), t.Wd), nil

	case gotWd + gotYr + gotDay:
		if y > t.Y+1 || (y > t.Y && m > 0) {
			return -1, nil
		}
		if y > t.Y {
			j := advanceToWd(dse.FromYMD(t.Y, 11, t.D), t.Wd)
			if j >= startdate {
				return j, nil
			}
			return -1, nil
		}
		if y < t.Y {
			return advanceToWd(dse.FromYMD(t.Y, 0, t.D), t.Wd), nil
		}
		if m > 0 {
			m2 := m - 1
			for t.D > dse.DaysInMonth(m2, t.Y) {
				m2--
			}
			j := advanceToWd(dse.FromYMD(t.Y, m2, t.D), t.Wd)
			if yearOf(j) == t.Y && j >= startdate {
				return j, nil
			}
		}
		if t.D <= dse.DaysInMonth(m, t.Y) {
			j := advanceToWd(dse.FromYMD(t.Y, m, t.D), t.Wd)
			if yearOf(j) > t.Y {
				return -1, nil
			}
			if j >= startdate {
				return j, nil
			}
		}
		if m == 11 {
			return -1, nil
		}
		m++
		for t.D > dse.DaysInMonth(m, t.Y) {
			m++
		}
		j := advanceToWd(dse.FromYMD(t.Y, m, t.D), t.Wd)
		if yearOf(j) > t.Y {
			return -1, nil
		}
		return j, nil

	case gotDay + gotMon + gotWd:
		if t.M == 1 && t.D > 29 {
			return -1, errs.ErrBadDate
		}
		if t.D > 29 && t.D > dse.DaysInMonth(t.M, 2000) {
			return -1, errs.ErrBadDate
		}
		if y > dse.BaseYear {
			y--
		}
		for t.D > dse.DaysInMonth(t.M, y) {
			y++
		}
		j := advanceToWd(dse.FromYMD(y, t.M, t.D), t.Wd)
		if j >= startdate {
			return j, nil
		}
		y++
		for t.D > dse.DaysInMonth(t.M, y) {
			y++
		}
		j = advanceToWd(dse.FromYMD(y, t.M, t.D), t.Wd)
		if j >= startdate {
			return j, nil
		}
		y++
		for t.D > dse.DaysInMonth(t.M, y) {
			y++
		}
		return advanceToWd(dse.FromYMD(y, t.M, t.D), t.Wd), nil

	case gotWd + gotMon + gotYr:
		if y > t.Y || (y == t.Y && m > t.M) {
			return -1, nil
		}
		if t.Y > y || (t.Y == y && t.M > m) {
			return advanceToWd(dse.FromYMD(t.Y, t.M, 1), t.Wd), nil
		}
		j := advanceToWd(startdate, t.Wd)
		if monthOf(j) == t.M {
			return j, nil
		}
		return -1, nil

	case gotWd + gotDay + gotMon + gotYr:
		if t.D > dse.DaysInMonth(t.M, t.Y) {
			return -1, errs.ErrBadDate
		}
		return advanceToWd(dse.FromYMD(t.Y, t.M, t.D), t.Wd), nil
	}
	return -1, errs.ErrCantTrig
}

func yearOf(serial int) int {
	y, _, _ := dse.ToYMD(serial)
	return y
}

func monthOf(serial int) int {
	_, m, _ := dse.ToYMD(serial)
	return m
}

// getNextTriggerDate wraps the simple trigger with the BACK, REP, SKIP and
// UNTIL passes. It returns the candidate date (or -1 when expired) and the
// suggested start for the next scan attempt.
func getNextTriggerDate(env Env, t *Trigger, start int) (result int, nextstart int, err error) {
	if t.Until != NoUntil && t.Until < start {
		t.Expired = true
		return -1, 0, nil
	}

	// An AFTER match anchored inside a run of holidays must pick the
	// run's leading boundary; rewind to it first.
	if t.Skip == AfterSkip {
		iter := 0
		for {
			if iter > env.MaxSatIter() {
				return -1, 0, errs.ErrCantTrig
			}
			iter++
			om, oerr := env.OmitCheck(start-1, t.LocalOmit, t.OmitFunc)
			if oerr != nil {
				return -1, 0, oerr
			}
			if !om {
				break
			}
			start--
			if start < 0 {
				return -1, 0, errs.ErrCantTrig
			}
		}
	}

	simple, err := nextSimpleTrig(start, t)
	if err != nil || simple == -1 {
		return -1, 0, err
	}
	nextstart = simple + 1

	if t.Back != NoBack {
		if t.Back < 0 {
			simple += t.Back
		} else {
			mod := t.Back
			iter := 0
			max := env.MaxSatIter()
			if max < mod*2 {
				max = mod * 2
			}
			for mod > 0 {
				if iter > max {
					return -1, 0, errs.ErrCantTrig
				}
				iter++
				simple--
				om, oerr := env.OmitCheck(simple, t.LocalOmit, t.OmitFunc)
				if oerr != nil {
					return -1, 0, oerr
				}
				if !om {
					mod--
				}
			}
		}
	}

	if t.Rep != NoRep && simple < start {
		mod := (start - simple) / t.Rep
		simple += mod * t.Rep
		if simple < start {
			simple += t.Rep
		}
	}

	if t.Skip == BeforeSkip {
		iter := 0
		for {
			if iter > env.MaxSatIter() {
				return -1, 0, errs.ErrCantTrig
			}
			iter++
			om, oerr := env.OmitCheck(simple, t.LocalOmit, t.OmitFunc)
			if oerr != nil {
				return -1, 0, oerr
			}
			if !om {
				break
			}
			simple--
			if simple < 0 {
				return -1, 0, errs.ErrCantTrig
			}
		}
	}

	if t.Skip == AfterSkip {
		iter := 0
		for {
			if iter > env.MaxSatIter() {
				return -1, 0, errs.ErrCantTrig
			}
			iter++
			om, oerr := env.OmitCheck(simple, t.LocalOmit, t.OmitFunc)
			if oerr != nil {
				return -1, 0, oerr
			}
			if !om {
				break
			}
			simple++
		}
	}

	if t.Until != NoUntil && simple > t.Until {
		return -1, nextstart, nil
	}
	return simple, nextstart, nil
}

// Result carries the solved trigger date plus the possibly duration-adjusted
// time record.
type Result struct {
	Date int // -1 when expired
	Tim  TimeTrig
}

// Compute computes the next trigger date for t given today. The scan base is
// the trigger's SCANFROM when one is set (FROM is clamped to today by the
// parser's caller), otherwise today itself. A long-duration event that
// started before today but is still active is reported for today with its
// TimeTrig folded (duration reduced by the elapsed whole days and the start
// time pinned to midnight); the original AT and DURATION are preserved in
// EventStart/EventDuration.
func Compute(env Env, today int, t *Trigger, tt TimeTrig) (Result, error) {
	if t.ScanFrom != NoScan {
		today = t.ScanFrom
	}
	r, err := computeNoAdjust(env, today, t, tt, 0)
	if err != nil {
		return Result{Date: -1, Tim: tt}, err
	}
	if r == today {
		if tt.Time != NoTime {
			t.EventStart = dse.DateTime(r, tt.Time)
			if tt.Duration != NoTime {
				t.EventDuration = tt.Duration
			}
		}
		return Result{Date: r, Tim: tt}, nil
	}
	if t.DurationDays != 0 {
		r, err = computeNoAdjust(env, today, t, tt, t.DurationDays)
		if err != nil {
			return Result{Date: -1, Tim: tt}, err
		}
	}
	return adjustForDuration(today, r, t, tt), nil
}

func adjustForDuration(today, r int, t *Trigger, tt TimeTrig) Result {
	if tt.Time != NoTime {
		t.EventStart = dse.DateTime(r, tt.Time)
		if tt.Duration != NoTime {
			t.EventDuration = tt.Duration
		}
	}
	if r < today && r+t.DurationDays >= today {
		tt.Duration -= (today - r) * dse.MinutesPerDay
		tt.Duration += tt.Time
		tt.Time = 0
		r = today
	}
	return Result{Date: r, Tim: tt}
}

func computeNoAdjust(env Env, today int, t *Trigger, tt TimeTrig, durationDays int) (int, error) {
	t.Expired = false
	start := today - durationDays

	if env.WeekdayOmits()|t.LocalOmit == 0x7f {
		return -1, errs.ErrCantTrig
	}
	if start < 0 {
		return -1, errs.ErrDateOver
	}
	if tt.Duration != NoTime && tt.Time == NoTime {
		return -1, errs.ErrBadTime
	}
	if t.Rep != NoRep && (t.D == NoDay || t.M == NoMon || t.Y == NoYr) {
		return -1, errs.ErrBadDate
	}

	for attempts := 0; attempts < TrigAttempts; attempts++ {
		result, nextstart, err := getNextTriggerDate(env, t, start)
		if err != nil {
			return -1, err
		}
		if result == -1 {
			t.Expired = true
			return -1, nil
		}

		omit := false
		if t.Skip == SkipSkip {
			omit, err = env.OmitCheck(result, t.LocalOmit, t.OmitFunc)
			if err != nil {
				return -1, err
			}
		}

		if result+durationDays >= today && (t.Skip != SkipSkip || !omit) {
			return result, nil
		}

		// A simple trigger cannot produce a different date on rescan.
		if t.Back == NoBack && t.Skip == NoSkip && t.Rep == NoRep {
			t.Expired = true
			return -1, nil
		}

		if t.Skip == SkipSkip && omit && nextstart <= start && result >= start {
			nextstart = result + 1
		}
		if nextstart <= start {
			t.Expired = true
			return -1, nil
		}
		start = nextstart
	}
	return -1, errs.ErrCantTrig
}

// ShouldTrigger reports whether a solved trigger fires today, honoring the
// advance-warning delta window.
func ShouldTrigger(env Env, today int, t *Trigger, res Result) (bool, error) {
	if res.Date < 0 {
		return false, nil
	}
	if res.Date == today {
		return true, nil
	}
	if t.Delta == 0 || res.Date < today {
		return false, nil
	}
	if !t.DeltaOmit {
		return res.Date-today <= t.Delta, nil
	}
	// Count only non-omitted days in the window.
	n := 0
	for d := today; d < res.Date; d++ {
		om, err := env.OmitCheck(d, t.LocalOmit, t.OmitFunc)
		if err != nil {
			return false, err
		}
		if !om {
			n++
		}
		if n > t.Delta {
			return false, nil
		}
	}
	return n <= t.Delta, nil
}
