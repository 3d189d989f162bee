package expr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"rem/internal/dse"
	"rem/internal/errs"
	"rem/internal/value"
)

// fakeHost is a minimal Host for evaluator tests.
type fakeHost struct {
	vars     map[string]value.Value
	nonconst map[string]bool
	funcs    *FuncStore
	today    int
	now      int
	omitted  map[int]bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		vars:     map[string]value.Value{},
		nonconst: map[string]bool{},
		funcs:    NewFuncStore(),
		today:    dse.FromYMD(2030, 0, 1),
		now:      600,
		omitted:  map[int]bool{},
	}
}

func (h *fakeHost) GetVar(name string) (value.Value, bool, error) {
	v, ok := h.vars[strings.ToLower(name)]
	if !ok {
		return value.Value{}, false, fmt.Errorf("%w: %s", errs.ErrUndefVar, name)
	}
	return v, h.nonconst[strings.ToLower(name)], nil
}

func (h *fakeHost) SetVar(name string, v value.Value, nonconst bool) error {
	h.vars[strings.ToLower(name)] = v
	h.nonconst[strings.ToLower(name)] = nonconst
	return nil
}

func (h *fakeHost) GetSysVar(name string) (value.Value, bool, error) {
	return value.Value{}, false, fmt.Errorf("%w: $%s", errs.ErrUndefVar, name)
}
func (h *fakeHost) SetSysVar(name string, v value.Value) error { return errs.ErrCantSet }
func (h *fakeHost) Funcs() *FuncStore                          { return h.funcs }
func (h *fakeHost) TodayDSE() int                              { return h.today }
func (h *fakeHost) NowMinute() int                             { return h.now }
func (h *fakeHost) RealNowDSE() (int, int)                     { return h.today, h.now }
func (h *fakeHost) TrigField(string) (value.Value, error) {
	return value.Value{}, errs.ErrUntrigValid
}
func (h *fakeHost) EvalTrig(string, int) (int, int, error) { return -1, dse.NoTime, errs.ErrExpired }
func (h *fakeHost) Shell(string, int) (string, error)      { return "", errs.ErrRunDisabled }
func (h *fakeHost) RunDisabled() bool                      { return true }
func (h *fakeHost) ExprsDisabled() bool                    { return false }
func (h *fakeHost) Translate(s string) (string, bool)      { return "", false }
func (h *fakeHost) IsOmitted(d int) (bool, error)          { return h.omitted[d], nil }
func (h *fakeHost) Subst(body string, _, _ int) (string, error) {
	return body, nil
}
func (h *fakeHost) MaxStringLen() int { return 65535 }
func (h *fakeHost) Language() string  { return "English" }
func (h *fakeHost) Version() string   { return "1.0.0" }
func (h *fakeHost) FileName() string  { return "test.rem" }

func evalString(t *testing.T, h *fakeHost, src string) (value.Value, error) {
	t.Helper()
	n, err := ParseAll(src, nil)
	if err != nil {
		return value.Value{}, err
	}
	return New(h).Eval(n, nil)
}

func mustEval(t *testing.T, h *fakeHost, src string) value.Value {
	t.Helper()
	v, err := evalString(t, h, src)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return v
}

func TestArithmetic(t *testing.T) {
	h := newFakeHost()
	cases := []struct {
		src  string
		want value.Value
	}{
		{"2+3*4", value.NewInt(14)},
		{"(2+3)*4", value.NewInt(20)},
		{"10-2-3", value.NewInt(5)},
		{"7/2", value.NewInt(3)},
		{"7%3", value.NewInt(1)},
		{"-5+2", value.NewInt(-3)},
		{"!0", value.NewInt(1)},
		{"!\"\"", value.NewInt(1)},
		{"1 && 2", value.NewInt(1)},
		{"0 || 0", value.NewInt(0)},
		{"1 < 2", value.NewInt(1)},
		{"\"abc\" + \"def\"", value.NewStr("abcdef")},
		{"\"ab\" < \"b\"", value.NewInt(1)},
		{"2 == 2", value.NewInt(1)},
		{"2 != 2", value.NewInt(0)},
	}
	for _, c := range cases {
		got := mustEval(t, h, c.src)
		if !got.Equal(c.want) {
			t.Errorf("%q = %v %q, want %q", c.src, got.Type, got.String(), c.want.String())
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	h := newFakeHost()
	_, err := evalString(t, h, "1/0")
	if !errors.Is(err, errs.ErrDivZero) {
		t.Fatalf("err = %v, want division by zero", err)
	}
	_, err = evalString(t, h, "1%0")
	if !errors.Is(err, errs.ErrDivZero) {
		t.Fatalf("err = %v, want division by zero", err)
	}
}

func TestTypeMismatchComparison(t *testing.T) {
	h := newFakeHost()
	if _, err := evalString(t, h, "1 < \"2\""); !errors.Is(err, errs.ErrBadType) {
		t.Fatalf("err = %v, want bad type", err)
	}
}

func TestDateArithmetic(t *testing.T) {
	h := newFakeHost()
	v := mustEval(t, h, "date(2030,1,1) + 31")
	if v.Type != value.Date {
		t.Fatalf("type = %v", v.Type)
	}
	if got := v.String(); got != "2030-02-01" {
		t.Errorf("date+31 = %q", got)
	}
	v = mustEval(t, h, "date(2030,2,1) - date(2030,1,1)")
	if !v.Equal(value.NewInt(31)) {
		t.Errorf("date-date = %v", v.String())
	}
	v = mustEval(t, h, "time(23,30) + 60")
	if !v.Equal(value.NewTime(30)) {
		t.Errorf("time wraps to %v", v.String())
	}
}

func TestShortCircuit(t *testing.T) {
	h := newFakeHost()
	// The right side would fail with division by zero if evaluated.
	v := mustEval(t, h, "0 && 1/0")
	if !v.Equal(value.NewInt(0)) {
		t.Errorf("&& short circuit = %v", v.String())
	}
	v = mustEval(t, h, "1 || 1/0")
	if !v.Equal(value.NewInt(1)) {
		t.Errorf("|| short circuit = %v", v.String())
	}
}

func TestVariablesAndNonConst(t *testing.T) {
	h := newFakeHost()
	h.SetVar("x", value.NewInt(5), false)
	h.SetVar("y", value.NewInt(7), true)

	n, err := ParseAll("x + 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	ev := New(h)
	v, err := ev.Eval(n, nil)
	if err != nil || !v.Equal(value.NewInt(6)) {
		t.Fatalf("x+1 = %v, %v", v, err)
	}
	if ev.NonConst {
		t.Error("constant variable read should not set NonConst")
	}

	n, _ = ParseAll("y + 1", nil)
	ev = New(h)
	if _, err := ev.Eval(n, nil); err != nil {
		t.Fatal(err)
	}
	if !ev.NonConst {
		t.Error("non-constant variable read should set NonConst")
	}

	// now() is a non-constant builtin.
	n, _ = ParseAll("now()", nil)
	ev = New(h)
	if _, err := ev.Eval(n, nil); err != nil {
		t.Fatal(err)
	}
	if !ev.NonConst {
		t.Error("now() should set NonConst")
	}
}

func TestUndefinedVariable(t *testing.T) {
	h := newFakeHost()
	if _, err := evalString(t, h, "nosuch + 1"); !errors.Is(err, errs.ErrUndefVar) {
		t.Fatalf("err = %v, want undefined variable", err)
	}
}

func TestIifChooseCatch(t *testing.T) {
	h := newFakeHost()
	if v := mustEval(t, h, "iif(1, \"yes\", \"no\")"); v.Str != "yes" {
		t.Errorf("iif = %q", v.Str)
	}
	if v := mustEval(t, h, "iif(0, \"yes\", \"no\")"); v.Str != "no" {
		t.Errorf("iif = %q", v.Str)
	}
	if v := mustEval(t, h, "choose(2, \"a\", \"b\", \"c\")"); v.Str != "b" {
		t.Errorf("choose = %q", v.Str)
	}
	if v := mustEval(t, h, "choose(9, \"a\", \"b\", \"c\")"); v.Str != "c" {
		t.Errorf("choose out of range = %q", v.Str)
	}
	if v := mustEval(t, h, "catch(1/0, 42)"); !v.Equal(value.NewInt(42)) {
		t.Errorf("catch = %v", v.String())
	}
	if v := mustEval(t, h, "catch(1/0, 0) + 0*strlen(catcherr())"); v.Type != value.Int {
		t.Errorf("catcherr after catch: %v", v)
	}
}

func TestUserFunctions(t *testing.T) {
	h := newFakeHost()
	body, err := ParseAll("iif(n<=1, n, f(n-1)+f(n-2))", []string{"n"})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.funcs.Set(&UserFunc{Name: "f", Args: []string{"n"}, Body: body, IsConst: true}); err != nil {
		t.Fatal(err)
	}
	v := mustEval(t, h, "f(10)")
	if !v.Equal(value.NewInt(55)) {
		t.Fatalf("f(10) = %v, want 55", v.String())
	}
}

func TestRecursionLimit(t *testing.T) {
	h := newFakeHost()
	body, _ := ParseAll("loop(n)", []string{"n"})
	_ = h.funcs.Set(&UserFunc{Name: "loop", Args: []string{"n"}, Body: body})
	_, err := evalString(t, h, "loop(1)")
	if !errors.Is(err, errs.ErrRecursive) {
		t.Fatalf("err = %v, want recursion error", err)
	}
}

func TestNodeLimit(t *testing.T) {
	h := newFakeHost()
	body, _ := ParseAll("iif(n<=0, 0, burn(n-1))", []string{"n"})
	_ = h.funcs.Set(&UserFunc{Name: "burn", Args: []string{"n"}, Body: body})
	n, err := ParseAll("burn(50)", nil)
	if err != nil {
		t.Fatal(err)
	}
	ev := New(h)
	ev.NodeLimit = 20
	if _, err := ev.Eval(n, nil); !errors.Is(err, errs.ErrTimeExceeded) {
		t.Fatalf("err = %v, want time exceeded", err)
	}
}

func TestStringBuiltins(t *testing.T) {
	h := newFakeHost()
	cases := []struct {
		src, want string
	}{
		{`upper("abc")`, "ABC"},
		{`lower("ABC")`, "abc"},
		{`substr("hello", 2, 4)`, "ell"},
		{`substr("hello", 4)`, "lo"},
		{`ord(1)`, "1st"},
		{`ord(2)`, "2nd"},
		{`ord(3)`, "3rd"},
		{`ord(11)`, "11th"},
		{`ord(22)`, "22nd"},
		{`plural(1)`, ""},
		{`plural(2)`, "s"},
		{`plural(2, "box", "boxes")`, "boxes"},
		{`char(104, 105)`, "hi"},
	}
	for _, c := range cases {
		if v := mustEval(t, h, c.src); v.Str != c.want {
			t.Errorf("%s = %q, want %q", c.src, v.Str, c.want)
		}
	}
	if v := mustEval(t, h, `index("banana", "an")`); !v.Equal(value.NewInt(2)) {
		t.Errorf("index = %v", v.String())
	}
	if v := mustEval(t, h, `index("banana", "an", 3)`); !v.Equal(value.NewInt(4)) {
		t.Errorf("index from = %v", v.String())
	}
	if v := mustEval(t, h, `asc("A")`); !v.Equal(value.NewInt(65)) {
		t.Errorf("asc = %v", v.String())
	}
}

func TestIsConst(t *testing.T) {
	h := newFakeHost()
	if v := mustEval(t, h, "isconst(1+2)"); !v.Equal(value.NewInt(1)) {
		t.Errorf("isconst(1+2) = %v", v.String())
	}
	if v := mustEval(t, h, "isconst(now())"); !v.Equal(value.NewInt(0)) {
		t.Errorf("isconst(now()) = %v", v.String())
	}
}

func TestBracketTermination(t *testing.T) {
	// Parse must stop at the top-level ']' without consuming it.
	n, used, err := Parse("1+2] trailing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if "1+2] trailing"[used] != ']' {
		t.Fatalf("parse stopped at %d", used)
	}
	v, err := New(newFakeHost()).Eval(n, nil)
	if err != nil || !v.Equal(value.NewInt(3)) {
		t.Fatalf("value = %v, %v", v, err)
	}
}

func TestEaster(t *testing.T) {
	h := newFakeHost()
	cases := map[string]string{
		"easterdate(2024)": "2024-03-31",
		"easterdate(2025)": "2025-04-20",
		"easterdate(2030)": "2030-04-21",
	}
	for src, want := range cases {
		if v := mustEval(t, h, src); v.String() != want {
			t.Errorf("%s = %s, want %s", src, v.String(), want)
		}
	}
}

func TestStdoutBuiltin(t *testing.T) {
	// The answer depends on how the test process is wired up; only the
	// vocabulary is fixed.
	v := mustEval(t, newFakeHost(), "stdout()")
	switch v.Str {
	case "TTY", "FILE", "PIPE", "CHARDEV", "BLOCKDEV", "DIR", "SYMLINK", "SOCKET", "UNKNOWN":
	default:
		t.Errorf("stdout() = %q", v.Str)
	}
}

func TestNotSupportedFamilyIsCatchable(t *testing.T) {
	h := newFakeHost()
	v := mustEval(t, h, `catch(sunrise(), "unavailable")`)
	if v.Str != "unavailable" {
		t.Errorf("catch(sunrise()) = %q", v.Str)
	}
}
