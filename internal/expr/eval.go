package expr

import (
	"fmt"
	"math"
	"sync/atomic"

	"rem/internal/dse"
	"rem/internal/errs"
	"rem/internal/value"
)

// Host supplies the engine facilities the evaluator and builtins need.
// The script engine implements it; tests use a lightweight fake.
type Host interface {
	// GetVar returns a user variable's value and whether it is non-constant.
	GetVar(name string) (v value.Value, nonconst bool, err error)
	SetVar(name string, v value.Value, nonconst bool) error
	GetSysVar(name string) (v value.Value, nonconst bool, err error)
	SetSysVar(name string, v value.Value) error

	Funcs() *FuncStore

	// TodayDSE is the effective "today"; NowMinute the effective time of
	// day. Real* variants ignore any SET $Today / time override.
	TodayDSE() int
	NowMinute() int
	RealNowDSE() (serial int, minute int)

	// TrigField returns a field of the most recently computed trigger;
	// name is the builtin's own name (trigdate, trigtime, ...).
	TrigField(name string) (value.Value, error)

	// EvalTrig parses a REM fragment and solves its next trigger date
	// from start (start < 0 means today).
	EvalTrig(spec string, start int) (date int, min int, err error)

	Shell(cmd string, maxlen int) (string, error)
	RunDisabled() bool
	ExprsDisabled() bool
	Translate(s string) (string, bool)
	IsOmitted(serial int) (bool, error)
	Subst(body string, serial, min int) (string, error)

	MaxStringLen() int
	Language() string
	Version() string
	FileName() string
}

// Evaluator walks expression trees. A fresh evaluator is used per source
// line; NodesEvaluated and the captured-error slot persist across the
// expressions of that line.
type Evaluator struct {
	Host     Host
	NonConst bool // set when anything non-constant was read

	NodeLimit      int64 // 0 means default
	nodesEvaluated int64
	TimedOut       *atomic.Bool // optional wall-clock limit flag

	recursionDepth int
	catchDepth     int
	lastErr        error // captured by catch()
}

// DefaultNodeLimit bounds per-line expression work.
const DefaultNodeLimit = 10000000

// MaxRecursionLevel bounds user-function nesting.
const MaxRecursionLevel = 100

// New returns an evaluator backed by h.
func New(h Host) *Evaluator {
	return &Evaluator{Host: h}
}

func (ev *Evaluator) tick() error {
	ev.nodesEvaluated++
	limit := ev.NodeLimit
	if limit == 0 {
		limit = DefaultNodeLimit
	}
	if ev.nodesEvaluated > limit {
		return errs.ErrTimeExceeded
	}
	if ev.TimedOut != nil && ev.TimedOut.Load() {
		return errs.ErrTimeExceeded
	}
	return nil
}

// Eval evaluates a tree against an optional local frame (a user function's
// arguments).
func (ev *Evaluator) Eval(n *Node, locals []value.Value) (value.Value, error) {
	if ev.Host.ExprsDisabled() {
		return value.Value{}, errs.ErrExprDisabled
	}
	if err := ev.tick(); err != nil {
		return value.Value{}, err
	}
	switch n.Kind {
	case KindConst:
		return n.Val, nil
	case KindArgRef:
		if n.ArgIdx >= len(locals) {
			return value.Value{}, fmt.Errorf("%w: %s", errs.ErrUndefVar, n.Name)
		}
		return locals[n.ArgIdx], nil
	case KindVarRef:
		v, nonconst, err := ev.Host.GetVar(n.Name)
		if err != nil {
			return value.Value{}, err
		}
		if nonconst {
			ev.NonConst = true
		}
		return v, nil
	case KindSysRef:
		v, nonconst, err := ev.Host.GetSysVar(n.Name)
		if err != nil {
			return value.Value{}, err
		}
		if nonconst {
			ev.NonConst = true
		}
		return v, nil
	case KindBuiltinCall:
		if !n.Builtin.Const {
			ev.NonConst = true
		}
		return n.Builtin.Fn(ev, n, locals)
	case KindUserCall:
		return ev.callUser(n, locals)
	case KindOp:
		return ev.applyOp(n, locals)
	}
	return value.Value{}, errs.ErrParse
}

// EvalArgs evaluates every child of a call node. Builtins that do not need
// the raw AST use this.
func (ev *Evaluator) EvalArgs(n *Node, locals []value.Value) ([]value.Value, error) {
	out := make([]value.Value, len(n.Children))
	for i, c := range n.Children {
		v, err := ev.Eval(c, locals)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ev *Evaluator) callUser(n *Node, locals []value.Value) (value.Value, error) {
	f, ok := ev.Host.Funcs().Get(n.Name)
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %s", errs.ErrUndefFunc, n.Name)
	}
	if len(n.Children) != len(f.Args) {
		if len(n.Children) < len(f.Args) {
			return value.Value{}, fmt.Errorf("%s: %w", f.Name, errs.Err2Few)
		}
		return value.Value{}, fmt.Errorf("%s: %w", f.Name, errs.Err2Many)
	}
	if ev.recursionDepth >= MaxRecursionLevel {
		return value.Value{}, fmt.Errorf("%w: %s", errs.ErrRecursive, f.Name)
	}
	if !f.IsConst {
		ev.NonConst = true
	}
	frame := make([]value.Value, len(n.Children))
	for i, c := range n.Children {
		v, err := ev.Eval(c, locals)
		if err != nil {
			return value.Value{}, err
		}
		frame[i] = v
	}
	ev.recursionDepth++
	v, err := ev.Eval(f.Body, frame)
	ev.recursionDepth--
	return v, err
}

func (ev *Evaluator) applyOp(n *Node, locals []value.Value) (value.Value, error) {
	// Short-circuit forms first.
	switch n.Op {
	case OpAnd:
		l, err := ev.Eval(n.Children[0], locals)
		if err != nil {
			return value.Value{}, err
		}
		if !l.Truthy() {
			return value.NewInt(0), nil
		}
		r, err := ev.Eval(n.Children[1], locals)
		if err != nil {
			return value.Value{}, err
		}
		return boolVal(r.Truthy()), nil
	case OpOr:
		l, err := ev.Eval(n.Children[0], locals)
		if err != nil {
			return value.Value{}, err
		}
		if l.Truthy() {
			return value.NewInt(1), nil
		}
		r, err := ev.Eval(n.Children[1], locals)
		if err != nil {
			return value.Value{}, err
		}
		return boolVal(r.Truthy()), nil
	}

	l, err := ev.Eval(n.Children[0], locals)
	if err != nil {
		return value.Value{}, err
	}
	if len(n.Children) == 1 {
		return unaryOp(n.Op, l)
	}
	r, err := ev.Eval(n.Children[1], locals)
	if err != nil {
		return value.Value{}, err
	}
	switch n.Op {
	case OpAdd:
		return ev.add(l, r)
	case OpSub:
		return sub(l, r)
	case OpMul, OpDiv, OpMod:
		return mulDivMod(n.Op, l, r)
	case OpEQ, OpNE, OpLT, OpLE, OpGT, OpGE:
		return compare(n.Op, l, r)
	}
	return value.Value{}, errs.ErrParse
}

func boolVal(b bool) value.Value {
	if b {
		return value.NewInt(1)
	}
	return value.NewInt(0)
}

func unaryOp(op Op, v value.Value) (value.Value, error) {
	switch op {
	case OpNot:
		return boolVal(!v.Truthy()), nil
	case OpNeg:
		if v.Type != value.Int {
			return value.Value{}, errs.ErrBadType
		}
		if v.Int == math.MinInt64 {
			return value.Value{}, errs.ErrOverflow
		}
		return value.NewInt(-v.Int), nil
	case OpPos:
		if v.Type != value.Int {
			return value.Value{}, errs.ErrBadType
		}
		return v, nil
	}
	return value.Value{}, errs.ErrParse
}

func addOverflows(a, b int64) bool {
	s := a + b
	return (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0)
}

func (ev *Evaluator) add(l, r value.Value) (value.Value, error) {
	switch {
	case l.Type == value.Int && r.Type == value.Int:
		if addOverflows(l.Int, r.Int) {
			return value.Value{}, errs.ErrOverflow
		}
		return value.NewInt(l.Int + r.Int), nil
	case l.Type == value.Str || r.Type == value.Str:
		if err := l.Coerce(value.Str); err != nil {
			return value.Value{}, errs.ErrBadType
		}
		if err := r.Coerce(value.Str); err != nil {
			return value.Value{}, errs.ErrBadType
		}
		if max := ev.Host.MaxStringLen(); max > 0 && len(l.Str)+len(r.Str) > max {
			return value.Value{}, errs.ErrStrTooLong
		}
		return value.NewStr(l.Str + r.Str), nil
	case l.Type == value.Date && r.Type == value.Int:
		return datePlus(l, r.Int)
	case l.Type == value.Int && r.Type == value.Date:
		return datePlus(r, l.Int)
	case l.Type == value.DateTime && r.Type == value.Int:
		return dtPlus(l, r.Int)
	case l.Type == value.Int && r.Type == value.DateTime:
		return dtPlus(r, l.Int)
	case l.Type == value.Time && r.Type == value.Int:
		return timePlus(l, r.Int), nil
	case l.Type == value.Int && r.Type == value.Time:
		return timePlus(r, l.Int), nil
	}
	return value.Value{}, errs.ErrBadType
}

var maxDateSerial = int64(dse.FromYMD(dse.MaxYear, 11, 31))

func datePlus(d value.Value, n int64) (value.Value, error) {
	serial := d.Int + n
	if serial < 0 || serial > maxDateSerial {
		return value.Value{}, errs.ErrDateOver
	}
	return value.NewDate(int(serial)), nil
}

func dtPlus(d value.Value, minutes int64) (value.Value, error) {
	dt := d.Int + minutes
	if dt < 0 {
		return value.Value{}, errs.ErrDateOver
	}
	return value.NewDateTime(dt), nil
}

// timePlus is modular within one day.
func timePlus(t value.Value, minutes int64) value.Value {
	m := (t.Int + minutes) % dse.MinutesPerDay
	if m < 0 {
		m += dse.MinutesPerDay
	}
	return value.NewTime(int(m))
}

func sub(l, r value.Value) (value.Value, error) {
	switch {
	case l.Type == value.Int && r.Type == value.Int:
		if addOverflows(l.Int, -r.Int) && r.Int != math.MinInt64 {
			return value.Value{}, errs.ErrOverflow
		}
		if r.Int == math.MinInt64 {
			return value.Value{}, errs.ErrOverflow
		}
		return value.NewInt(l.Int - r.Int), nil
	case l.Type == value.Date && r.Type == value.Date:
		return value.NewInt(l.Int - r.Int), nil
	case l.Type == value.DateTime && r.Type == value.DateTime:
		return value.NewInt(l.Int - r.Int), nil
	case l.Type == value.Date && r.Type == value.Int:
		return datePlus(l, -r.Int)
	case l.Type == value.DateTime && r.Type == value.Int:
		return dtPlus(l, -r.Int)
	case l.Type == value.Time && r.Type == value.Int:
		return timePlus(l, -r.Int), nil
	case l.Type == value.Time && r.Type == value.Time:
		return value.NewInt(l.Int - r.Int), nil
	}
	return value.Value{}, errs.ErrBadType
}

func mulDivMod(op Op, l, r value.Value) (value.Value, error) {
	if l.Type != value.Int || r.Type != value.Int {
		return value.Value{}, errs.ErrBadType
	}
	switch op {
	case OpMul:
		if l.Int != 0 && r.Int != 0 {
			p := l.Int * r.Int
			if p/l.Int != r.Int {
				return value.Value{}, errs.ErrOverflow
			}
			return value.NewInt(p), nil
		}
		return value.NewInt(0), nil
	case OpDiv:
		if r.Int == 0 {
			return value.Value{}, errs.ErrDivZero
		}
		if l.Int == math.MinInt64 && r.Int == -1 {
			return value.Value{}, errs.ErrOverflow
		}
		return value.NewInt(l.Int / r.Int), nil
	default:
		if r.Int == 0 {
			return value.Value{}, errs.ErrDivZero
		}
		return value.NewInt(l.Int % r.Int), nil
	}
}

// compare requires an exact type match; there is no date/datetime promotion.
func compare(op Op, l, r value.Value) (value.Value, error) {
	if l.Type != r.Type {
		return value.Value{}, errs.ErrBadType
	}
	var cmp int
	if l.Type == value.Str {
		switch {
		case l.Str < r.Str:
			cmp = -1
		case l.Str > r.Str:
			cmp = 1
		}
	} else {
		switch {
		case l.Int < r.Int:
			cmp = -1
		case l.Int > r.Int:
			cmp = 1
		}
	}
	switch op {
	case OpEQ:
		return boolVal(cmp == 0), nil
	case OpNE:
		return boolVal(cmp != 0), nil
	case OpLT:
		return boolVal(cmp < 0), nil
	case OpLE:
		return boolVal(cmp <= 0), nil
	case OpGT:
		return boolVal(cmp > 0), nil
	default:
		return boolVal(cmp >= 0), nil
	}
}
