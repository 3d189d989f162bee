package trigger

import (
	"strings"
	"testing"

	"rem/internal/dse"
)

// fakeEnv supplies omits from a plain set plus the local weekday mask.
type fakeEnv struct {
	omitted map[int]bool
	maxIter int
	wdomits uint8
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{omitted: map[int]bool{}, maxIter: 1000}
}

func (f *fakeEnv) OmitCheck(serial int, localomit uint8, omitfunc string) (bool, error) {
	if localomit&(1<<(serial%7)) != 0 {
		return true, nil
	}
	if f.wdomits&(1<<(serial%7)) != 0 {
		return true, nil
	}
	return f.omitted[serial], nil
}

func (f *fakeEnv) MaxSatIter() int     { return f.maxIter }
func (f *fakeEnv) WeekdayOmits() uint8 { return f.wdomits }

// sliceTokens is a trivial TokenSource over pre-split tokens.
type sliceTokens struct {
	toks []string
	i    int
	body string
}

func (s *sliceTokens) Token() (string, error) {
	if s.i >= len(s.toks) {
		return "", nil
	}
	t := s.toks[s.i]
	s.i++
	return t, nil
}

func (s *sliceTokens) Body() string { return s.body }

func (s *sliceTokens) Unread(tok string) {
	s.i--
}

func parseSpec(t *testing.T, spec string) (Trigger, TimeTrig, string) {
	t.Helper()
	parts := strings.Fields(spec)
	// Split at the type keyword so Body() has something sensible.
	body := ""
split:
	for i, p := range parts {
		switch strings.ToUpper(p) {
		case "MSG", "RUN", "CAL", "MSF", "SPECIAL", "PS", "PSFILE":
			if strings.ToUpper(p) == "SPECIAL" && i+2 <= len(parts) {
				body = strings.Join(parts[i+2:], " ")
				parts = parts[:i+2]
			} else {
				body = strings.Join(parts[i+1:], " ")
				parts = parts[:i+1]
			}
			break split
		}
	}
	ts := &sliceTokens{toks: parts, body: body}
	tr, tt, b, err := ParseRem(ts)
	if err != nil {
		t.Fatalf("ParseRem(%q): %v", spec, err)
	}
	return tr, tt, b
}

func d(y, m, day int) int { return dse.FromYMD(y, m-1, day) }

func TestParseBasics(t *testing.T) {
	tr, tt, body := parseSpec(t, "Jan 1 2030 MSG Hi there")
	if tr.D != 1 || tr.M != 0 || tr.Y != 2030 {
		t.Fatalf("d/m/y = %d/%d/%d", tr.D, tr.M, tr.Y)
	}
	if tr.Typ != Msg || body != "Hi there" {
		t.Fatalf("typ %v body %q", tr.Typ, body)
	}
	if tt.Time != NoTime {
		t.Fatal("unexpected AT")
	}
}

func TestParseWeekdayMask(t *testing.T) {
	tr, _, _ := parseSpec(t, "Mon Wed Fri MSG x")
	// bit 0 = Monday, 2 = Wednesday, 4 = Friday
	if tr.Wd != 1|1<<2|1<<4 {
		t.Fatalf("mask = %08b", tr.Wd)
	}
}

func TestParseAtClause(t *testing.T) {
	tr, tt, _ := parseSpec(t, "Jan 1 2030 AT 17:00 +30 *10 MSG x")
	if tt.Time != 17*60 || tt.Delta != 30 || tt.Rep != 10 {
		t.Fatalf("AT = %d delta %d rep %d", tt.Time, tt.Delta, tt.Rep)
	}
	if tr.Delta != 0 {
		t.Fatal("+30 after AT must be a time delta, not a date delta")
	}
}

func TestParseShorthands(t *testing.T) {
	tr, _, _ := parseSpec(t, "Nov 28 +4 MSG Thanksgiving")
	if tr.Delta != 4 || !tr.DeltaOmit {
		t.Fatalf("delta = %d omit %v", tr.Delta, tr.DeltaOmit)
	}
	tr, _, _ = parseSpec(t, "Nov 28 -2 MSG x")
	if tr.Back != 2 {
		t.Fatalf("back = %d", tr.Back)
	}
	tr, _, _ = parseSpec(t, "Nov 28 --2 MSG x")
	if tr.Back != -2 {
		t.Fatalf("double back = %d", tr.Back)
	}
	tr, _, _ = parseSpec(t, "Jan 1 2030 *14 MSG x")
	if tr.Rep != 14 {
		t.Fatalf("rep = %d", tr.Rep)
	}
}

func TestParseDuplicateRejected(t *testing.T) {
	ts := &sliceTokens{toks: []string{"Jan", "Feb", "MSG"}}
	if _, _, _, err := ParseRem(ts); err == nil {
		t.Fatal("duplicate month must be rejected")
	}
	ts = &sliceTokens{toks: []string{"2030", "2031", "MSG"}}
	if _, _, _, err := ParseRem(ts); err == nil {
		t.Fatal("duplicate year must be rejected")
	}
}

func TestParseUntilAndSpecial(t *testing.T) {
	tr, _, _ := parseSpec(t, "Mon UNTIL 1 Jan 2031 MSG x")
	if tr.Until != d(2031, 1, 1) {
		t.Fatalf("until = %d", tr.Until)
	}
	tr, _, body := parseSpec(t, "Jan 1 2030 SPECIAL COLOR 255 0 0 party")
	if tr.Typ != Passthru || tr.Passthru != "COLOR" || body != "255 0 0 party" {
		t.Fatalf("special: %v %q %q", tr.Typ, tr.Passthru, body)
	}
}

func TestParseOmitRun(t *testing.T) {
	tr, _, _ := parseSpec(t, "Mon OMIT Sat Sun SKIP MSG x")
	if tr.LocalOmit != 1<<5|1<<6 {
		t.Fatalf("localomit = %08b", tr.LocalOmit)
	}
	if tr.Skip != SkipSkip {
		t.Fatalf("skip = %v", tr.Skip)
	}
}

func TestSolveExactDate(t *testing.T) {
	env := newFakeEnv()
	jan1 := d(2030, 1, 1)

	tr, tt, _ := parseSpec(t, "Jan 1 2030 MSG Hi")
	res, err := Compute(env, d(2029, 12, 31), &tr, tt)
	if err != nil || res.Date != jan1 {
		t.Fatalf("day before: %d, %v", res.Date, err)
	}
	tr, tt, _ = parseSpec(t, "Jan 1 2030 MSG Hi")
	res, _ = Compute(env, jan1, &tr, tt)
	if res.Date != jan1 {
		t.Fatalf("on the day: %d", res.Date)
	}
	tr, tt, _ = parseSpec(t, "Jan 1 2030 MSG Hi")
	res, _ = Compute(env, jan1+1, &tr, tt)
	if res.Date != -1 || !tr.Expired {
		t.Fatalf("day after should expire, got %d", res.Date)
	}
}

func TestSolveWeekday(t *testing.T) {
	env := newFakeEnv()
	// 2030-01-04 is a Friday.
	fri := d(2030, 1, 4)
	tr, tt, _ := parseSpec(t, "Fri MSG F")
	res, _ := Compute(env, fri, &tr, tt)
	if res.Date != fri {
		t.Fatalf("friday on friday: got %s", dse.String(res.Date))
	}
	tr, tt, _ = parseSpec(t, "Fri MSG F")
	res, _ = Compute(env, fri-1, &tr, tt) // Thursday
	if res.Date != fri {
		t.Fatalf("friday from thursday: got %s", dse.String(res.Date))
	}
}

func TestSolveSkipAndBefore(t *testing.T) {
	env := newFakeEnv()
	jan1 := d(2031, 1, 1)
	env.omitted[jan1] = true

	tr, tt, _ := parseSpec(t, "Jan 1 2031 SKIP MSG x")
	res, _ := Compute(env, jan1, &tr, tt)
	if res.Date != -1 {
		t.Fatalf("SKIP on omitted date must not trigger; got %s", dse.String(res.Date))
	}

	tr, tt, _ = parseSpec(t, "Jan 1 2031 BEFORE MSG x")
	res, _ = Compute(env, d(2030, 12, 30), &tr, tt)
	if res.Date != jan1-1 {
		t.Fatalf("BEFORE should back off to Dec 31; got %s", dse.String(res.Date))
	}
}

func TestSolveAfterRunOfHolidays(t *testing.T) {
	env := newFakeEnv()
	// Jan 1 and Jan 2 2031 both omitted; AFTER lands on Jan 3.
	env.omitted[d(2031, 1, 1)] = true
	env.omitted[d(2031, 1, 2)] = true
	tr, tt, _ := parseSpec(t, "Jan 1 2031 AFTER MSG x")
	res, _ := Compute(env, d(2030, 12, 28), &tr, tt)
	if res.Date != d(2031, 1, 3) {
		t.Fatalf("AFTER = %s", dse.String(res.Date))
	}
}

func TestSolveBackCountsNonOmitted(t *testing.T) {
	env := newFakeEnv()
	// Two working days before Mon Jan 6 2031, skipping the weekend and an
	// omitted Friday Jan 3: Thu Jan 2, then Wed Jan 1.
	env.omitted[d(2031, 1, 3)] = true
	tr, tt, _ := parseSpec(t, "Jan 6 2031 OMIT Sat Sun -2 MSG x")
	res, _ := Compute(env, d(2030, 12, 28), &tr, tt)
	if res.Date != d(2031, 1, 1) {
		t.Fatalf("back over omits = %s", dse.String(res.Date))
	}
}

func TestSolveRep(t *testing.T) {
	env := newFakeEnv()
	tr, tt, _ := parseSpec(t, "Jan 1 2030 *14 MSG x")
	res, _ := Compute(env, d(2030, 1, 20), &tr, tt)
	if res.Date != d(2030, 1, 29) {
		t.Fatalf("rep advance = %s", dse.String(res.Date))
	}
	// Exactly on a repetition.
	tr, tt, _ = parseSpec(t, "Jan 1 2030 *14 MSG x")
	res, _ = Compute(env, d(2030, 1, 15), &tr, tt)
	if res.Date != d(2030, 1, 15) {
		t.Fatalf("rep exact = %s", dse.String(res.Date))
	}
}

func TestSolveRepRequiresFullDate(t *testing.T) {
	env := newFakeEnv()
	tr, tt, _ := parseSpec(t, "Jan 1 *14 MSG x")
	if _, err := Compute(env, d(2030, 1, 1), &tr, tt); err == nil {
		t.Fatal("rep without a full date must fail")
	}
}

func TestSolveUntil(t *testing.T) {
	env := newFakeEnv()
	tr, tt, _ := parseSpec(t, "Mon UNTIL 10 Jan 2030 MSG x")
	res, _ := Compute(env, d(2030, 1, 12), &tr, tt)
	if res.Date != -1 {
		t.Fatalf("past UNTIL must expire; got %s", dse.String(res.Date))
	}
}

func TestSolvePostConditions(t *testing.T) {
	env := newFakeEnv()
	specs := []string{
		"Wed MSG x",
		"15 MSG x",
		"Jan MSG x",
		"Jan 15 MSG x",
		"15 2031 MSG x",
		"Sat 1 MSG x",
	}
	for _, spec := range specs {
		for _, today := range []int{d(2030, 1, 1), d(2030, 6, 15), d(2031, 2, 28)} {
			tr, tt, _ := parseSpec(t, spec)
			res, err := Compute(env, today, &tr, tt)
			if err != nil || res.Date < 0 {
				t.Fatalf("%q from %s: %d, %v", spec, dse.String(today), res.Date, err)
			}
			if res.Date < today {
				t.Errorf("%q: result %s before today %s", spec, dse.String(res.Date), dse.String(today))
			}
			y, m, day := dse.ToYMD(res.Date)
			if tr.D != NoDay && day != tr.D {
				t.Errorf("%q: day %d != %d", spec, day, tr.D)
			}
			if tr.M != NoMon && m != tr.M {
				t.Errorf("%q: month %d != %d", spec, m, tr.M)
			}
			if tr.Y != NoYr && y != tr.Y {
				t.Errorf("%q: year %d != %d", spec, y, tr.Y)
			}
			if tr.Wd != NoWd && tr.Wd&(1<<(res.Date%7)) == 0 {
				t.Errorf("%q: weekday mask unsatisfied on %s", spec, dse.String(res.Date))
			}
		}
	}
}

func TestDurationFolding(t *testing.T) {
	env := newFakeEnv()
	// A 30-hour event starting Jan 1 23:00 is still active on Jan 2.
	tr, tt, _ := parseSpec(t, "Jan 1 2030 AT 23:00 DURATION 30:00 MSG x")
	// 23:00 + 30h ends at 05:00 two days later.
	if tr.DurationDays != 2 {
		t.Fatalf("duration_days = %d", tr.DurationDays)
	}
	today := d(2030, 1, 2)
	res, err := Compute(env, today, &tr, tt)
	if err != nil {
		t.Fatal(err)
	}
	if res.Date != today {
		t.Fatalf("folded date = %s", dse.String(res.Date))
	}
	if res.Tim.Time != 0 {
		t.Fatalf("folded start = %d, want midnight", res.Tim.Time)
	}
	// Original event start preserved for the substitution engine.
	if tr.EventStart != dse.DateTime(d(2030, 1, 1), 23*60) {
		t.Fatalf("eventstart = %d", tr.EventStart)
	}
	if tr.EventDuration != 30*60 {
		t.Fatalf("eventduration = %d", tr.EventDuration)
	}
}

func TestShouldTriggerDelta(t *testing.T) {
	env := newFakeEnv()
	today := d(2030, 11, 25) // Monday
	tr, tt, _ := parseSpec(t, "Nov 28 2030 +4 MSG x")
	res, err := Compute(env, today, &tr, tt)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := ShouldTrigger(env, today, &tr, res)
	if err != nil || !ok {
		t.Fatalf("within delta window: %v, %v", ok, err)
	}
	tr2, tt2, _ := parseSpec(t, "Nov 28 2030 +2 MSG x")
	res2, _ := Compute(env, today, &tr2, tt2)
	ok, _ = ShouldTrigger(env, today, &tr2, res2)
	if ok {
		t.Fatal("outside delta window must not trigger")
	}
}

func TestFindInfo(t *testing.T) {
	tr := New()
	tr.Infos = []string{"Location: kitchen", "Url: http://x"}
	if v, ok := tr.FindInfo("location"); !ok || v != "kitchen" {
		t.Fatalf("FindInfo = %q, %v", v, ok)
	}
	if _, ok := tr.FindInfo("missing"); ok {
		t.Fatal("missing header found")
	}
}
