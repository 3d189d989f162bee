package script

import (
	"testing"
)

func TestSplitLogicalLines(t *testing.T) {
	text := "REM one\n" +
		"# comment\n" +
		"; comment too\n" +
		"\n" +
		"REM two \\\npart\n" +
		"REM three\n" +
		"__EOF__\n" +
		"REM never\n"
	lines := splitLogicalLines(text)
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %+v", len(lines), lines)
	}
	if lines[0].Text != "REM one" || lines[0].Num != 1 {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if lines[1].Text != "REM two \npart" || lines[1].Num != 5 {
		t.Errorf("continuation = %+v", lines[1])
	}
	if lines[2].Text != "REM three" || lines[2].Num != 7 {
		t.Errorf("line 2 = %+v", lines[2])
	}
}

func TestFillSentenceSpacing(t *testing.T) {
	opts := FillOpts{Width: 60, EndSent: ".!?", EndSentIg: `"')]}`}
	got := Fill("One. Two", opts)
	if got != "One.  Two" {
		t.Errorf("sentence spacing: %q", got)
	}
	got = Fill(`One." Two`, opts)
	if got != `One."  Two` {
		t.Errorf("ignored trailing quote: %q", got)
	}
}

func TestFillIndents(t *testing.T) {
	opts := FillOpts{Width: 10, FirstIndent: 2, SubsIndent: 4}
	got := Fill("aaaa bbbb cccc", opts)
	want := "  aaaa\n    bbbb\n    cccc"
	if got != want {
		t.Errorf("indents:\n%q\nwant\n%q", got, want)
	}
}

func TestVisibleWidthIgnoresANSI(t *testing.T) {
	if w := visibleWidth("\x1b[1;31mred\x1b[0m"); w != 3 {
		t.Errorf("ANSI width = %d", w)
	}
}

func TestSortBufferTies(t *testing.T) {
	sb := NewSortBuffer(SortAsc, SortAsc, SortNone)
	sb.Add(10, 600, 5000, "b", 0)
	sb.Add(10, 600, 5000, "a", 0)
	sb.Add(9, 600, 5000, "c", 0)
	got := sb.Drain()
	if got[0] != "c" || got[1] != "b" || got[2] != "a" {
		t.Errorf("order = %v; ties must keep file order", got)
	}
}
