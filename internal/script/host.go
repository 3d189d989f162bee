package script

import (
	"fmt"

	"rem/internal/dse"
	"rem/internal/errs"
	"rem/internal/expr"
	"rem/internal/trigger"
	"rem/internal/value"
)

// The engine is the evaluator's Host: it resolves variables, system
// variables, user functions and the trigger/clock/shell facilities.

func (e *Engine) GetVar(name string) (value.Value, bool, error) {
	return e.Vars.Get(name)
}

func (e *Engine) SetVar(name string, v value.Value, nonconst bool) error {
	return e.Vars.Set(name, v, nonconst, e.curFile, e.curLine)
}

func (e *Engine) GetSysVar(name string) (value.Value, bool, error) {
	return e.Sys.Get(name)
}

func (e *Engine) SetSysVar(name string, v value.Value) error {
	return e.Sys.SetValue(name, v)
}

func (e *Engine) Funcs() *expr.FuncStore { return e.userFuncs }

func (e *Engine) TodayDSE() int { return e.Today }

func (e *Engine) NowMinute() int { return e.nowMinute() }

func (e *Engine) RealNowDSE() (int, int) {
	t := e.realNow()
	return dse.FromTime(t), dse.MinuteOf(t)
}

func (e *Engine) RunDisabled() bool { return e.runDisabled != 0 }

func (e *Engine) ExprsDisabled() bool { return e.exprOff }

func (e *Engine) Shell(cmd string, maxlen int) (string, error) {
	if e.runDisabled != 0 {
		return "", errs.ErrRunDisabled
	}
	return e.shellOut(cmd, maxlen)
}

func (e *Engine) Translate(s string) (string, bool) {
	return e.Trans.Lookup(s)
}

// IsOmitted is the builtin-facing omit check (global context only).
func (e *Engine) IsOmitted(serial int) (bool, error) {
	return e.isOmitted(serial, 0, "")
}

func (e *Engine) Subst(body string, serial, min int) (string, error) {
	full, _, err := e.substBody(e.newEvaluator(), body, nil, serial, min)
	return full, err
}

func (e *Engine) MaxStringLen() int { return int(e.Sys.Int("MaxStringLen")) }

func (e *Engine) Language() string { return "English" }

func (e *Engine) Version() string { return Version }

func (e *Engine) FileName() string { return e.curFile }

// TrigField serves the trig*() builtins from the most recently computed
// trigger.
func (e *Engine) TrigField(name string) (value.Value, error) {
	if !e.lastValid {
		switch name {
		case "trigvalid":
			return value.NewInt(0), nil
		}
		return value.Value{}, errs.ErrUntrigValid
	}
	t := &e.lastTrig
	switch name {
	case "trigvalid":
		return value.NewInt(1), nil
	case "trigdate":
		return value.NewDate(e.lastTrigDate), nil
	case "trigtime":
		if e.lastTrigTime == dse.NoTime {
			return value.Value{}, errs.ErrUntrigValid
		}
		return value.NewTime(e.lastTrigTime), nil
	case "trigdatetime":
		if e.lastTrigTime == dse.NoTime {
			return value.NewDate(e.lastTrigDate), nil
		}
		return value.NewDateTime(dse.DateTime(e.lastTrigDate, e.lastTrigTime)), nil
	case "trigger":
		// A REM fragment that re-triggers on the same date.
		y, m, d := dse.ToYMD(e.lastTrigDate)
		return value.NewStr(fmt.Sprintf("%d %s %d", d, dse.MonthName(m), y)), nil
	case "trigback":
		if t.Back == trigger.NoBack {
			return value.NewInt(0), nil
		}
		return value.NewInt(int64(t.Back)), nil
	case "trigdelta":
		return value.NewInt(int64(t.Delta)), nil
	case "trigrep":
		return value.NewInt(int64(t.Rep)), nil
	case "trigduration":
		if e.lastTim.Duration == dse.NoTime {
			return value.Value{}, errs.ErrUntrigValid
		}
		return value.NewInt(int64(e.lastTim.Duration)), nil
	case "trigeventstart":
		if t.EventStart < 0 {
			return value.Value{}, errs.ErrUntrigValid
		}
		return value.NewDateTime(t.EventStart), nil
	case "trigeventduration":
		if t.EventDuration == dse.NoTime {
			return value.Value{}, errs.ErrUntrigValid
		}
		return value.NewInt(int64(t.EventDuration)), nil
	case "trigfrom":
		if t.From == trigger.NoFrom {
			return value.Value{}, errs.ErrUntrigValid
		}
		return value.NewDate(t.From), nil
	case "trigscanfrom":
		if t.ScanFrom == trigger.NoScan {
			return value.NewDate(e.Today), nil
		}
		return value.NewDate(t.ScanFrom), nil
	case "triguntil":
		if t.Until == trigger.NoUntil {
			return value.Value{}, errs.ErrUntrigValid
		}
		return value.NewDate(t.Until), nil
	case "trigpriority":
		return value.NewInt(int64(t.Priority)), nil
	case "trigtags":
		return value.NewStr(t.TagString()), nil
	case "trigbase":
		return value.NewDate(e.lastTrigDate), nil
	case "trigtimedelta":
		return value.NewInt(int64(e.lastTim.Delta)), nil
	case "trigtimerep":
		return value.NewInt(int64(e.lastTim.Rep)), nil
	}
	if header, ok := cutPrefix(name, "triginfo:"); ok {
		if v, found := t.FindInfo(header); found {
			return value.NewStr(v), nil
		}
		return value.NewStr(""), nil
	}
	return value.Value{}, errs.ErrUndefFunc
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}

// EvalTrig parses a REM fragment and solves it from start (or today when
// start < 0) without touching the global last-trigger state.
func (e *Engine) EvalTrig(spec string, start int) (int, int, error) {
	lt := newLineTokens(e.newEvaluator(), spec)
	t, tt, _, err := trigger.ParseRem(lt)
	if err != nil {
		return -1, dse.NoTime, err
	}
	base := e.Today
	if start >= 0 {
		base = start
	}
	if t.ScanFrom == trigger.NoScan && t.From != trigger.NoFrom {
		t.ScanFrom = t.From
		if t.ScanFrom < base {
			t.ScanFrom = base
		}
	}
	res, err := trigger.Compute(e, base, &t, tt)
	if err != nil {
		return -1, dse.NoTime, err
	}
	return res.Date, res.Tim.Time, nil
}

// The engine is also the solver's Env.

func (e *Engine) MaxSatIter() int { return int(e.Sys.Int("MaxSatIter")) }

func (e *Engine) WeekdayOmits() uint8 { return e.Omits.WeekdayMask() }

// isOmitted combines the global omit context, a local weekday mask and an
// optional user omit predicate.
func (e *Engine) isOmitted(serial int, localomit uint8, omitfunc string) (bool, error) {
	if serial < 0 {
		return false, nil
	}
	if e.Omits.IsOmitted(serial, localomit) {
		return true, nil
	}
	if omitfunc != "" {
		f, ok := e.userFuncs.Get(omitfunc)
		if !ok {
			return false, fmt.Errorf("%w: %s", errs.ErrUndefFunc, omitfunc)
		}
		ev := e.newEvaluator()
		v, err := ev.Eval(f.Body, []value.Value{value.NewDate(serial)})
		if err != nil {
			return false, err
		}
		return v.Truthy(), nil
	}
	return false, nil
}

// OmitCheck is the solver-facing omit predicate.
func (e *Engine) OmitCheck(serial int, localomit uint8, omitfunc string) (bool, error) {
	return e.isOmitted(serial, localomit, omitfunc)
}
