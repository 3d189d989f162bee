package value

import (
	"testing"

	"rem/internal/dse"
)

func TestCanonicalRoundTrip(t *testing.T) {
	cases := []Value{
		NewInt(0),
		NewInt(-42),
		NewInt(14),
		NewDate(dse.FromYMD(2030, 0, 1)),
		NewTime(0),
		NewTime(1439),
		NewDateTime(dse.DateTime(dse.FromYMD(2031, 11, 31), 750)),
	}
	for _, v := range cases {
		got := Parse(v.String())
		if !got.Equal(v) {
			t.Errorf("Parse(%q) = %+v, want %+v", v.String(), got, v)
		}
	}
}

func TestCoercions(t *testing.T) {
	d := NewStr("2030-01-01")
	if err := d.Coerce(Date); err != nil {
		t.Fatalf("coerce str->date: %v", err)
	}
	if d.Int != int64(dse.FromYMD(2030, 0, 1)) {
		t.Errorf("date serial = %d", d.Int)
	}

	tm := NewStr("12:30")
	if err := tm.Coerce(Time); err != nil {
		t.Fatalf("coerce str->time: %v", err)
	}
	if tm.Int != 750 {
		t.Errorf("minutes = %d", tm.Int)
	}

	bad := NewStr("notadate")
	if err := bad.Coerce(Date); err == nil {
		t.Error("expected coercion failure")
	}

	i := NewInt(2000)
	if err := i.Coerce(Time); err == nil {
		t.Error("2000 minutes should not coerce to a time of day")
	}

	dt := NewDate(dse.FromYMD(2030, 0, 1))
	if err := dt.Coerce(DateTime); err != nil {
		t.Fatalf("date->datetime: %v", err)
	}
	if s, m := dse.SplitDateTime(dt.Int); m != 0 || s != dse.FromYMD(2030, 0, 1) {
		t.Errorf("datetime split = (%d,%d)", s, m)
	}
}

func TestTruthiness(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{NewInt(0), false},
		{NewInt(1), true},
		{NewStr(""), false},
		{NewStr("x"), true},
		{NewDate(0), true},
		{NewTime(0), true},
		{Value{Type: Err}, false},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%v %q) = %v, want %v", c.v.Type, c.v.String(), got, c.want)
		}
	}
}
