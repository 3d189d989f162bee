package queue

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"rem/internal/trigger"
	"rem/internal/value"
)

func testQueue() (*Queue, *bytes.Buffer) {
	var out bytes.Buffer
	q := New(&out, &bytes.Buffer{})
	q.TestMode = true
	q.Now = func() time.Time {
		return time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	}
	return q, &out
}

func timedEntry(min int) (trigger.Trigger, trigger.TimeTrig) {
	t := trigger.New()
	t.Typ = trigger.Msg
	tt := trigger.NewTimeTrig()
	tt.Time = min
	return t, tt
}

func TestDefaultNext(t *testing.T) {
	cases := []struct {
		name              string
		ttime, delta, rep int
		prev              int
		want              int
	}{
		{"plain future", 700, 0, 0, 599, 700},
		{"at-time reached", 700, 0, 0, 700, NoTime},
		{"delta opens early", 700, 30, 0, 599, 670},
		{"rep steps forward", 700, 60, 15, 660, 670},
		{"rep lands on ttime", 700, 60, 20, 695, 700},
		{"rep exhausted", 700, 60, 15, 700, NoTime},
	}
	for _, c := range cases {
		tt := trigger.NewTimeTrig()
		tt.Time = c.ttime
		tt.Delta = c.delta
		tt.Rep = c.rep
		if got := defaultNext(tt, c.prev); got != c.want {
			t.Errorf("%s: defaultNext = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestSchedFunction(t *testing.T) {
	q, _ := testQueue()
	calls := 0
	q.Hooks.CallSched = func(name string, run int) (value.Value, error) {
		calls++
		switch run {
		case 1:
			return value.NewTime(650), nil // absolute
		case 2:
			return value.NewInt(20), nil // delta from last absolute
		default:
			return value.NewInt(0), nil // non-increasing: kill the entry
		}
	}
	tr, tt := timedEntry(700)
	tr.Sched = "mysched"
	q.Add(tr, tt, "x", "f.rem", 1)
	e := q.Entries[0]

	if got := q.calcNext(e, 599); got != 650 {
		t.Fatalf("first sched = %d, want 650", got)
	}
	if got := q.calcNext(e, 650); got != 670 {
		t.Fatalf("delta sched = %d, want 670", got)
	}
	if got := q.calcNext(e, 670); got != NoTime {
		t.Fatalf("non-increasing sched = %d, want NoTime", got)
	}
	if calls != 3 {
		t.Fatalf("sched called %d times", calls)
	}
}

func TestStatusAndDel(t *testing.T) {
	q, out := testQueue()
	for i := 0; i < 3; i++ {
		tr, tt := timedEntry(700 + i)
		q.Add(tr, tt, "r", "f.rem", i+1)
	}
	q.InitTimes(599)

	q.HandleCommand("STATUS")
	if got := out.String(); got != "NOTE queued 3\n" {
		t.Fatalf("STATUS output %q", got)
	}
	out.Reset()

	q.HandleCommand("DEL <qid>")
	if got := out.String(); got != "NOTE queued 2\n" {
		t.Fatalf("after DEL output %q", got)
	}
}

func TestStatusJSON(t *testing.T) {
	q, out := testQueue()
	q.JSONMode = true
	tr, tt := timedEntry(700)
	q.Add(tr, tt, "r", "f.rem", 1)
	q.InitTimes(599)
	q.HandleCommand("STATUS")
	got := strings.TrimSpace(out.String())
	want := `{"command":"STATUS","nqueued":1,"response":"queued"}`
	if got != want {
		t.Fatalf("JSON STATUS = %s, want %s", got, want)
	}
}

func TestFireFraming(t *testing.T) {
	q, out := testQueue()
	q.Hooks.Subst = func(body string, _ *trigger.Trigger, _, _ int) (string, error) {
		return body + "!", nil
	}
	tr, tt := timedEntry(600)
	q.Add(tr, tt, "Tea time", "f.rem", 1)
	q.InitTimes(599)
	q.FireDue(600)

	want := "NOTE reminder 10:00 10:00 *\nTea time!\nNOTE endreminder\n"
	if got := out.String(); got != want {
		t.Fatalf("framing = %q, want %q", got, want)
	}
	if q.NQueued() != 0 {
		t.Fatal("entry should be exhausted after firing at its AT time")
	}
}

func TestLateFireWindow(t *testing.T) {
	q, out := testQueue()
	q.MaxLate = 10
	tr, tt := timedEntry(600)
	q.Add(tr, tt, "late", "f.rem", 1)
	q.InitTimes(599)

	// 5 minutes late, never fired: still fires.
	q.FireDue(605)
	if !strings.Contains(out.String(), "late") {
		t.Fatal("late entry within MaxLate should fire")
	}

	out.Reset()
	tr2, tt2 := timedEntry(600)
	q.Add(tr2, tt2, "too-late", "f.rem", 2)
	q.Entries[len(q.Entries)-1].NextTime = 600
	q.FireDue(620)
	if strings.Contains(out.String(), "too-late") {
		t.Fatal("entry beyond MaxLate must not fire")
	}
}

func TestFireOrderWithinMinute(t *testing.T) {
	q, out := testQueue()
	for _, body := range []string{"first", "second", "third"} {
		tr, tt := timedEntry(600)
		q.Add(tr, tt, body, "f.rem", 1)
	}
	q.InitTimes(599)
	q.FireDue(600)
	s := out.String()
	if !(strings.Index(s, "first") < strings.Index(s, "second") &&
		strings.Index(s, "second") < strings.Index(s, "third")) {
		t.Fatalf("entries sharing a minute must fire in insertion order:\n%s", s)
	}
}

func TestJSONQueueDump(t *testing.T) {
	q, out := testQueue()
	tr, tt := timedEntry(700)
	q.Add(tr, tt, "body text", "f.rem", 7)
	q.InitTimes(599)
	q.HandleCommand("JSONQUEUE")
	got := strings.TrimSpace(out.String())
	if !strings.HasPrefix(got, "[{") || !strings.Contains(got, `"qid":"<qid>"`) ||
		!strings.Contains(got, `"ttime":"11:40"`) {
		t.Fatalf("JSONQUEUE = %s", got)
	}
}
