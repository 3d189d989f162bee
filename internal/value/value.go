// Package value implements the tagged value type of the scripting language:
// integers, times of day, dates, datetimes, strings and a captured error kind.
package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rem/internal/dse"
)

// Type tags a Value.
type Type int

const (
	Err Type = iota
	Int
	Time
	Date
	DateTime
	Str
)

func (t Type) String() string {
	switch t {
	case Int:
		return "INT"
	case Time:
		return "TIME"
	case Date:
		return "DATE"
	case DateTime:
		return "DATETIME"
	case Str:
		return "STRING"
	}
	return "ERR"
}

// Coercion and arithmetic failures.
var (
	ErrCantCoerce = errors.New("can't coerce")
	ErrBadType    = errors.New("bad type")
	ErrOverflow   = errors.New("arithmetic overflow")
	ErrDateRange  = errors.New("date out of range")
)

// Value is a tagged variant. Int holds the integer, date serial, minute of day
// or packed datetime depending on Type; Str holds the string payload.
type Value struct {
	Type Type
	Int  int64
	Str  string
}

func NewInt(i int64) Value       { return Value{Type: Int, Int: i} }
func NewStr(s string) Value      { return Value{Type: Str, Str: s} }
func NewDate(serial int) Value   { return Value{Type: Date, Int: int64(serial)} }
func NewTime(min int) Value      { return Value{Type: Time, Int: int64(min)} }
func NewDateTime(dt int64) Value { return Value{Type: DateTime, Int: dt} }

// Truthy implements the language's truth rule: non-zero int, non-empty
// string, any valid date/time/datetime; an error value is always false.
func (v Value) Truthy() bool {
	switch v.Type {
	case Int:
		return v.Int != 0
	case Str:
		return v.Str != ""
	case Date, Time, DateTime:
		return true
	}
	return false
}

// String renders the canonical form. For Int, Date, Time and DateTime values,
// re-parsing the result with Parse yields an equal value; a Str whose text
// reads as a number, date or time parses back as that type instead.
func (v Value) String() string {
	switch v.Type {
	case Int:
		return strconv.FormatInt(v.Int, 10)
	case Str:
		return v.Str
	case Date:
		return dse.String(int(v.Int))
	case Time:
		return dse.TimeString(int(v.Int))
	case DateTime:
		s, m := dse.SplitDateTime(v.Int)
		return dse.String(s) + "@" + dse.TimeString(m)
	}
	return "<error>"
}

// Equal reports deep equality of two values including their types.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	if v.Type == Str {
		return v.Str == o.Str
	}
	return v.Int == o.Int
}

// Coerce converts v to the requested type in place, or fails with
// ErrCantCoerce when the pair has no defined conversion.
func (v *Value) Coerce(to Type) error {
	if v.Type == to {
		return nil
	}
	switch to {
	case Str:
		v.Str = v.String()
		v.Type = Str
		v.Int = 0
		return nil
	case Int:
		switch v.Type {
		case Str:
			n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
			if err != nil {
				return ErrCantCoerce
			}
			*v = NewInt(n)
			return nil
		case Time, Date:
			v.Type = Int
			return nil
		case DateTime:
			v.Type = Int
			return nil
		}
	case Date:
		switch v.Type {
		case Str:
			serial, ok := parseDate(strings.TrimSpace(v.Str))
			if !ok {
				return ErrCantCoerce
			}
			*v = NewDate(serial)
			return nil
		case Int:
			if v.Int < 0 {
				return ErrDateRange
			}
			v.Type = Date
			return nil
		case DateTime:
			s, _ := dse.SplitDateTime(v.Int)
			*v = NewDate(s)
			return nil
		}
	case Time:
		switch v.Type {
		case Str:
			min, ok := parseTime(strings.TrimSpace(v.Str))
			if !ok {
				return ErrCantCoerce
			}
			*v = NewTime(min)
			return nil
		case Int:
			if v.Int < 0 || v.Int >= dse.MinutesPerDay {
				return ErrCantCoerce
			}
			v.Type = Time
			return nil
		case DateTime:
			_, m := dse.SplitDateTime(v.Int)
			*v = NewTime(m)
			return nil
		}
	case DateTime:
		switch v.Type {
		case Str:
			dt, ok := parseDateTime(strings.TrimSpace(v.Str))
			if !ok {
				return ErrCantCoerce
			}
			*v = NewDateTime(dt)
			return nil
		case Int:
			if v.Int < 0 {
				return ErrDateRange
			}
			v.Type = DateTime
			return nil
		case Date:
			*v = NewDateTime(dse.DateTime(int(v.Int), 0))
			return nil
		}
	}
	return ErrCantCoerce
}

// Parse reads the canonical forms produced by String: a decimal integer, a
// YYYY-MM-DD date, an HH:MM time, a date@time datetime, or (failing all of
// those) the bare string itself.
func Parse(s string) Value {
	t := strings.TrimSpace(s)
	if dt, ok := parseDateTime(t); ok {
		return NewDateTime(dt)
	}
	if serial, ok := parseDate(t); ok {
		return NewDate(serial)
	}
	if min, ok := parseTime(t); ok {
		return NewTime(min)
	}
	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		return NewInt(n)
	}
	return NewStr(s)
}

func parseDate(s string) (int, bool) {
	var y, m, d int
	if n, err := fmt.Sscanf(s, "%d-%d-%d", &y, &m, &d); n != 3 || err != nil {
		if n2, err2 := fmt.Sscanf(s, "%d/%d/%d", &y, &m, &d); n2 != 3 || err2 != nil {
			return 0, false
		}
	}
	if !dse.Valid(y, m-1, d) {
		return 0, false
	}
	return dse.FromYMD(y, m-1, d), true
}

func parseTime(s string) (int, bool) {
	var h, m int
	if n, err := fmt.Sscanf(s, "%d:%d", &h, &m); n != 2 || err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func parseDateTime(s string) (int64, bool) {
	sep := strings.IndexAny(s, "@T")
	if sep < 0 {
		return 0, false
	}
	serial, ok := parseDate(s[:sep])
	if !ok {
		return 0, false
	}
	min, ok := parseTime(s[sep+1:])
	if !ok {
		return 0, false
	}
	return dse.DateTime(serial, min), true
}
