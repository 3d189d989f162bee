package script

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rem/internal/dse"
	"rem/internal/value"
)

func testClock() time.Time {
	return time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
}

func newTestEngine(today string) (*Engine, *bytes.Buffer, *bytes.Buffer) {
	var out, errb bytes.Buffer
	e := New(&out, &errb, testClock)
	if today != "" {
		v := value.Parse(today)
		if v.Type != value.Date {
			panic("bad test date " + today)
		}
		e.Today = int(v.Int)
	}
	e.Banner = "" // deterministic output for most tests
	e.BeginIteration()
	return e, &out, &errb
}

func runText(e *Engine, text string) error {
	return e.processLines("test.rem", splitLogicalLines(text), false)
}

func TestScenarioExactDate(t *testing.T) {
	cases := []struct {
		today string
		want  string
	}{
		{"2029-12-31", ""},
		{"2030-01-01", "Hi\n"},
		{"2030-01-02", ""},
	}
	for _, c := range cases {
		e, out, errb := newTestEngine(c.today)
		if err := runText(e, "REM Jan 1 2030 MSG Hi\n"); err != nil {
			t.Fatal(err)
		}
		if out.String() != c.want {
			t.Errorf("on %s: output %q, want %q (stderr %q)", c.today, out.String(), c.want, errb.String())
		}
	}
}

func TestScenarioWeekday(t *testing.T) {
	// 2030-01-04 is a Friday.
	e, out, _ := newTestEngine("2030-01-04")
	_ = runText(e, "REM Fri MSG F\n")
	if out.String() != "F\n" {
		t.Errorf("friday run: %q", out.String())
	}

	// Thursday, next mode: the next Friday is reported.
	e, out, _ = newTestEngine("2030-01-03")
	e.Mode = ModeNext
	_ = runText(e, "REM Fri MSG F\n")
	if out.String() != "2030/01/04 F\n" {
		t.Errorf("next mode: %q", out.String())
	}
}

func TestScenarioSkipAndBefore(t *testing.T) {
	e, out, _ := newTestEngine("2031-01-01")
	_ = runText(e, "OMIT Jan 1 2031\nREM Jan 1 2031 SKIP MSG x\n")
	if out.String() != "" {
		t.Errorf("SKIP on omitted date emitted %q", out.String())
	}

	e, out, _ = newTestEngine("2030-12-31")
	_ = runText(e, "OMIT Jan 1 2031\nREM Jan 1 2031 BEFORE MSG x\n")
	if out.String() != "x\n" {
		t.Errorf("BEFORE emitted %q", out.String())
	}
}

func TestScenarioSetAndInterpolate(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "SET x = [2+3*4]\nREM Jan 1 2030 MSG %[x]\n")
	if out.String() != "14\n" {
		t.Errorf("interpolated body: %q", out.String())
	}
}

func TestScenarioFibonacci(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	script := "FSET f(n) = iif(n<=1, n, f(n-1)+f(n-2))\n" +
		"REM Jan 1 2030 MSG [f(10)]\n"
	if err := runText(e, script); err != nil {
		t.Fatal(err)
	}
	if out.String() != "55\n" {
		t.Errorf("f(10) body: %q", out.String())
	}
}

func TestQueueCollection(t *testing.T) {
	e, _, _ := newTestEngine("2030-01-01")
	script := "REM Jan 1 2030 AT 11:00 MSG a\n" +
		"REM Jan 1 2030 AT 12:00 MSG b\n" +
		"REM Jan 1 2030 AT 13:00 MSG c\n" +
		"REM Jan 2 2030 AT 13:00 MSG tomorrow\n" +
		"REM Jan 1 2030 AT 14:00 NOQUEUE MSG skipped\n"
	if err := runText(e, script); err != nil {
		t.Fatal(err)
	}
	if len(e.Queued) != 3 {
		t.Fatalf("queued %d entries, want 3", len(e.Queued))
	}
}

func TestIfElseEndif(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	script := `IF 1
REM Jan 1 2030 MSG yes
ELSE
REM Jan 1 2030 MSG no
ENDIF
IF 0
REM Jan 1 2030 MSG no2
ELSE
REM Jan 1 2030 MSG yes2
ENDIF
`
	_ = runText(e, script)
	if out.String() != "yes\nyes2\n" {
		t.Errorf("if/else output: %q", out.String())
	}
}

func TestIfStackBalanceWarning(t *testing.T) {
	e, _, errb := newTestEngine("2030-01-01")
	_ = runText(e, "IF 1\nREM Jan 1 2030 MSG x\n")
	if !strings.Contains(errb.String(), "missing ENDIF") {
		t.Errorf("expected missing-ENDIF warning, got %q", errb.String())
	}
}

func TestIgnoredBranchSkipsEverything(t *testing.T) {
	e, out, errb := newTestEngine("2030-01-01")
	script := `IF 0
SET x = [1/0]
BOGUS LINE THAT WOULD WARN
REM Jan 1 2030 MSG hidden
ENDIF
REM Jan 1 2030 MSG visible
`
	_ = runText(e, script)
	if out.String() != "visible\n" {
		t.Errorf("output %q", out.String())
	}
	if strings.Contains(errb.String(), "division") {
		t.Error("expression inside false branch must not be evaluated")
	}
}

func TestIftrig(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	script := `IFTRIG Jan 1 2030
REM Jan 1 2030 MSG fires
ENDIF
IFTRIG Jan 2 2030
REM Jan 1 2030 MSG hidden
ENDIF
`
	_ = runText(e, script)
	if out.String() != "fires\n" {
		t.Errorf("iftrig output %q", out.String())
	}
}

func TestBannerPrintedOnce(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	e.Banner = DefaultBanner
	_ = runText(e, "REM Jan 1 2030 MSG a\nREM Jan 1 2030 MSG b\n")
	want := "Reminders for Tuesday, 1 January, 2030:\na\nb\n"
	if out.String() != want {
		t.Errorf("banner output:\n%q\nwant\n%q", out.String(), want)
	}
}

func TestSubstitutionEscapes(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "REM Jan 1 2030 MSG %a|%b|%c|%d|%e|%f|%1|%!|%%|%_\n")
	want := "on Tuesday, 1 January, 2030|Tuesday|January|1|1|2030|1st|is|%|\n\n"
	if out.String() != want {
		t.Errorf("escapes:\n%q\nwant\n%q", out.String(), want)
	}
}

func TestSubstitutionTense(t *testing.T) {
	// On Tuesday 2030-01-01 "REM Fri" computes Friday Jan 4, not today, so
	// nothing is emitted; this first run's output is not checked.
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "REM Fri MSG %!\n")
	_ = out
	// Future trigger from next-mode renders "is".
	e, out, _ = newTestEngine("2030-01-03")
	e.Mode = ModeNext
	_ = runText(e, "REM Fri MSG it %!\n")
	if out.String() != "2030/01/04 it is\n" {
		t.Errorf("tense: %q", out.String())
	}
}

func TestTranslationInSubstitution(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	script := "TRANSLATE \"Tuesday\" \"Dienstag\"\nREM Jan 1 2030 MSG %b\n"
	_ = runText(e, script)
	if out.String() != "Dienstag\n" {
		t.Errorf("translated weekday: %q", out.String())
	}
}

func TestDedupe(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	script := "SET $DedupeReminders = 1\n" +
		"REM Jan 1 2030 MSG same\nREM Jan 1 2030 MSG same\n"
	_ = runText(e, script)
	if out.String() != "same\n" {
		t.Errorf("dedupe output %q", out.String())
	}
}

func TestSortBuffer(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	script := "SET $SortByTime = 1\n" +
		"REM Jan 1 2030 AT 12:00 NOQUEUE MSG noon\n" +
		"REM Jan 1 2030 AT 09:00 NOQUEUE MSG morning\n" +
		"REM Jan 1 2030 AT 18:00 NOQUEUE MSG evening\n"
	if err := runText(e, script); err != nil {
		t.Fatal(err)
	}
	e.drainSort()
	if out.String() != "morning\nnoon\nevening\n" {
		t.Errorf("sorted output %q", out.String())
	}
}

func TestPushPopOmitContext(t *testing.T) {
	e, out, _ := newTestEngine("2031-01-01")
	script := `PUSH-OMIT-CONTEXT
OMIT Jan 1 2031
POP-OMIT-CONTEXT
REM Jan 1 2031 SKIP MSG x
`
	_ = runText(e, script)
	if out.String() != "x\n" {
		t.Errorf("popped omit context should not suppress: %q", out.String())
	}
}

func TestGlobalWeekdayOmit(t *testing.T) {
	// 2030-01-05 is a Saturday.
	e, out, _ := newTestEngine("2030-01-05")
	_ = runText(e, "OMIT Sat Sun\nREM Sat SKIP MSG x\n")
	if out.String() != "" {
		t.Errorf("weekday omit should suppress: %q", out.String())
	}
}

func TestUnknownCommandAssumesRem(t *testing.T) {
	e, out, errb := newTestEngine("2030-01-01")
	_ = runText(e, "Jan 1 2030 MSG bare\n")
	if out.String() != "bare\n" {
		t.Errorf("bare REM output %q", out.String())
	}
	if !strings.Contains(errb.String(), "assuming REM") {
		t.Errorf("expected a warning, got %q", errb.String())
	}
}

func TestIncludeFile(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "inc.rem")
	if err := os.WriteFile(inc, []byte("REM Jan 1 2030 MSG included\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "INCLUDE "+inc+"\n")
	if out.String() != "included\n" {
		t.Errorf("include output %q", out.String())
	}
}

func TestIncludeDirGlob(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "b.rem"), []byte("REM Jan 1 2030 MSG bee\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "a.rem"), []byte("REM Jan 1 2030 MSG ay\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("REM Jan 1 2030 MSG nope\n"), 0o644)
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "INCLUDE "+dir+"\n")
	if out.String() != "ay\nbee\n" {
		t.Errorf("glob include output %q", out.String())
	}
}

func TestExitCode(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "EXIT 3\nREM Jan 1 2030 MSG unreachable\n")
	if e.ExitCode() != 3 {
		t.Errorf("exit code %d", e.ExitCode())
	}
	if out.String() != "" {
		t.Errorf("lines after EXIT ran: %q", out.String())
	}
}

func TestOnceFile(t *testing.T) {
	dir := t.TempDir()
	once := filepath.Join(dir, "once")
	script := "SET $OnceFile = \"" + once + "\"\nREM Jan 1 2030 ONCE MSG daily\n"

	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, script)
	if out.String() != "daily\n" {
		t.Fatalf("first run: %q", out.String())
	}
	if ReadOnceFile(once) != e.Today {
		t.Fatal("once file not updated")
	}

	// A second run on the same day stays quiet.
	e2, out2, _ := newTestEngine("2030-01-01")
	_ = runText(e2, script)
	if out2.String() != "" {
		t.Fatalf("second run emitted %q", out2.String())
	}
}

func TestPreserveSurvivesIteration(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "SET keep = 7\nPRESERVE keep\nSET lose = 8\n")
	e.BeginIteration()
	_ = runText(e, "REM Jan 1 2030 MSG [value(\"keep\", -1)] [value(\"lose\", -1)]\n")
	if out.String() != "7 -1\n" {
		t.Errorf("after iteration: %q", out.String())
	}
}

func TestSatisfy(t *testing.T) {
	// First day of January 2031 whose day number is above 2 (Jan 3).
	e, out, _ := newTestEngine("2030-12-01")
	script := "REM Jan 2031 SATISFY [day(trigdate()) > 2] MSG got %d\n"
	_ = runText(e, script)
	if out.String() != "" {
		// Satisfied on Jan 3 2031, not today, so normal mode stays quiet.
		t.Errorf("satisfy emitted early: %q", out.String())
	}

	e, out, _ = newTestEngine("2031-01-03")
	_ = runText(e, script)
	if out.String() != "got 3\n" {
		t.Errorf("satisfy output %q", out.String())
	}
}

func TestErrorsAreReportedWithPosition(t *testing.T) {
	e, out, errb := newTestEngine("2030-01-01")
	_ = runText(e, "SET x = [1/0]\nREM Jan 1 2030 MSG ok\n")
	if !strings.Contains(errb.String(), "test.rem(1)") {
		t.Errorf("error position missing: %q", errb.String())
	}
	if out.String() != "ok\n" {
		t.Errorf("run must continue after an error: %q", out.String())
	}
}

func TestEvalTrigBuiltin(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "REM Jan 1 2030 MSG [evaltrig(\"Feb 1 2030\")]\n")
	if out.String() != "2030-02-01\n" {
		t.Errorf("evaltrig: %q", out.String())
	}
}

func TestSimpleLevel1(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	e.Mode = ModeSimple1
	_ = runText(e, "REM Jan 1 2030 AT 14:30 NOQUEUE TAG party MSG fun\n")
	want := "2030/01/01 * party * 870 fun\n"
	if out.String() != want {
		t.Errorf("simple1: %q want %q", out.String(), want)
	}
}

func TestSimpleLevel2JSON(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	e.Mode = ModeSimple2
	_ = runText(e, "REM Jan 1 2030 INFO \"Location: home\" MSG fun %d\n")
	s := out.String()
	for _, frag := range []string{
		`"date":"2030-01-01"`,
		`"body":"fun 1"`,
		`"rawbody":"fun %d"`,
		`"passthru":"*"`,
		`"info":{"Location":"home"}`,
	} {
		if !strings.Contains(s, frag) {
			t.Errorf("simple2 missing %s in %s", frag, s)
		}
	}
}

func TestCalendarBodyRegion(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	e.Mode = ModeSimple2
	_ = runText(e, "REM Jan 1 2030 MSG before %\"short%\" after\n")
	s := out.String()
	if !strings.Contains(s, `"calendar_body":"short"`) {
		t.Errorf("calendar body region: %s", s)
	}
	if !strings.Contains(s, `"body":"before short after"`) {
		t.Errorf("full body: %s", s)
	}
}

func TestIdempotentRuns(t *testing.T) {
	script := "SET x = [2+2]\nREM Jan 1 2030 AT 16:00 NOQUEUE MSG x is [x] at %x\nREM Jan 1 2030 MSG plain\n"
	e1, out1, _ := newTestEngine("2030-01-01")
	_ = runText(e1, script)
	e2, out2, _ := newTestEngine("2030-01-01")
	_ = runText(e2, script)
	if out1.String() != out2.String() {
		t.Errorf("same inputs, different output:\n%q\n%q", out1.String(), out2.String())
	}
}

func TestRunDisabledShell(t *testing.T) {
	e, _, errb := newTestEngine("2030-01-01")
	e.SetRunDisabled(1)
	_ = runText(e, "REM Jan 1 2030 MSG [shell(\"echo hi\")]\n")
	if !strings.Contains(errb.String(), "RUN disabled") {
		t.Errorf("shell with -r: %q", errb.String())
	}
}

func TestMsfFill(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	script := "SET $FormWidth = 20\n" +
		"REM Jan 1 2030 MSF aaa bbb ccc ddd eee fff ggg hhh\n"
	_ = runText(e, script)
	for _, line := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if len(line) > 20 {
			t.Errorf("line overflows FormWidth: %q", line)
		}
	}
}

func TestTimeSubstitution(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	_ = runText(e, "REM Jan 1 2030 AT 14:05 NOQUEUE MSG %t|%x|%j|%i|%h|%k\n")
	want := "at 14:05|14:05|14|05|2|5\n"
	if out.String() != want {
		t.Errorf("time escapes %q want %q", out.String(), want)
	}
}

func TestWeekdayOmitBeforeAdjustsOffWeekend(t *testing.T) {
	// 2030-06-01 is a Saturday; BEFORE with OMIT Sat Sun lands on Friday
	// May 31.
	e, out, _ := newTestEngine("2030-05-31")
	_ = runText(e, "REM Jun 1 2030 OMIT Sat Sun BEFORE MSG pay\n")
	if out.String() != "pay\n" {
		t.Errorf("BEFORE weekend: %q", out.String())
	}
}

func TestTrigdateAfterRem(t *testing.T) {
	e, out, _ := newTestEngine("2030-01-01")
	script := "REM Feb 3 2030 MSG x\nIF trigdate() == date(2030,2,3)\nREM Jan 1 2030 MSG seen\nENDIF\n"
	_ = runText(e, script)
	if !strings.Contains(out.String(), "seen") {
		t.Errorf("trigdate propagation: %q", out.String())
	}
}

func TestDseWeekdayAgreesWithTime(t *testing.T) {
	// Cross-check the serial weekday against the stdlib for a decade.
	for serial := e0(2025); serial < e0(2035); serial += 17 {
		y, m, d := dse.ToYMD(serial)
		wd := time.Date(y, time.Month(m+1), d, 0, 0, 0, 0, time.UTC).Weekday()
		if int(wd) != dse.Weekday(serial) {
			t.Fatalf("weekday mismatch at %s", dse.String(serial))
		}
	}
}

func e0(y int) int { return dse.FromYMD(y, 0, 1) }
