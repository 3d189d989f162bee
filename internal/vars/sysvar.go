package vars

import (
	"fmt"
	"sort"
	"strings"

	"rem/internal/errs"
	"rem/internal/value"
)

// SysVar is one entry in the system-variable table. Entries are typed and
// may be read-only, bounded, or backed by accessor thunks instead of a
// stored value.
type SysVar struct {
	Name     string
	Value    value.Value
	ReadOnly bool
	NonConst bool  // reading it marks the expression non-constant
	Min, Max int64 // bounds for Int entries; both zero means unbounded

	// Accessor entries route both get and set through thunks.
	Get func() (value.Value, error)
	Set func(value.Value) error
}

// SysTable is the system-variable table. The set of names is fixed after
// construction; only values change.
type SysTable struct {
	byName map[string]*SysVar
}

func NewSysTable() *SysTable {
	return &SysTable{byName: make(map[string]*SysVar)}
}

// Register adds an entry. Panics on duplicates: registration happens once at
// engine construction with a static list.
func (t *SysTable) Register(v *SysVar) {
	k := strings.ToLower(v.Name)
	if _, dup := t.byName[k]; dup {
		panic("duplicate system variable " + v.Name)
	}
	t.byName[k] = v
}

// RegisterInt is shorthand for a bounded integer entry.
func (t *SysTable) RegisterInt(name string, def, min, max int64) {
	t.Register(&SysVar{Name: name, Value: value.NewInt(def), Min: min, Max: max})
}

// RegisterStr is shorthand for a string entry.
func (t *SysTable) RegisterStr(name, def string) {
	t.Register(&SysVar{Name: name, Value: value.NewStr(def)})
}

// Get reads a system variable.
func (t *SysTable) Get(name string) (value.Value, bool, error) {
	v, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return value.Value{}, false, fmt.Errorf("%w: $%s", errs.ErrUndefVar, name)
	}
	if v.Get != nil {
		got, err := v.Get()
		return got, v.NonConst, err
	}
	return v.Value, v.NonConst, nil
}

// SetValue writes a system variable, enforcing read-only flags, type
// stability and integer bounds.
func (t *SysTable) SetValue(name string, val value.Value) error {
	v, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: $%s", errs.ErrUndefVar, name)
	}
	if v.ReadOnly {
		return fmt.Errorf("%w: $%s", errs.ErrCantSet, v.Name)
	}
	if v.Set != nil {
		return v.Set(val)
	}
	if val.Type != v.Value.Type {
		if err := val.Coerce(v.Value.Type); err != nil {
			return fmt.Errorf("$%s: %w", v.Name, errs.ErrBadType)
		}
	}
	if v.Value.Type == value.Int && (v.Min != 0 || v.Max != 0) {
		if val.Int < v.Min {
			return fmt.Errorf("$%s: %w", v.Name, errs.ErrNumLow)
		}
		if val.Int > v.Max {
			return fmt.Errorf("$%s: %w", v.Name, errs.ErrNumHigh)
		}
	}
	v.Value = val
	return nil
}

// Int returns an integer entry's current value; it panics on a name that was
// never registered, which is always a programming error.
func (t *SysTable) Int(name string) int64 {
	v, _, err := t.Get(name)
	if err != nil {
		panic(err)
	}
	if v.Type != value.Int {
		panic("$" + name + " is not an int")
	}
	return v.Int
}

// Str returns a string entry's current value.
func (t *SysTable) Str(name string) string {
	v, _, err := t.Get(name)
	if err != nil {
		panic(err)
	}
	return v.Str
}

// Bool reads an integer entry as a flag.
func (t *SysTable) Bool(name string) bool { return t.Int(name) != 0 }

// Names returns all registered names, sorted (the table presents itself as
// statically sorted for DUMP).
func (t *SysTable) Names() []string {
	out := make([]string, 0, len(t.byName))
	for _, v := range t.byName {
		out = append(out, v.Name)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

// Lookup exposes the raw entry (for DUMP formatting).
func (t *SysTable) Lookup(name string) (*SysVar, bool) {
	v, ok := t.byName[strings.ToLower(name)]
	return v, ok
}
