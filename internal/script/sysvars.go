package script

import (
	"rem/internal/dse"
	"rem/internal/errs"
	"rem/internal/trigger"
	"rem/internal/value"
	"rem/internal/vars"
)

// Version is the tool version reported by version() and $Version.
const Version = "1.0.0"

// registerSysVars builds the engine's system-variable table. Accessor
// entries close over the engine.
func (e *Engine) registerSysVars() {
	t := e.Sys

	t.RegisterInt("MaxSatIter", 1000, 10, 1<<30)
	t.RegisterInt("MaxStringLen", 65535, -1, 1<<30)
	t.RegisterInt("MaxLateMinutes", 10, 0, dse.MinutesPerDay)
	t.RegisterInt("DedupeReminders", 0, 0, 1)
	t.RegisterInt("SortByDate", 0, 0, 2)
	t.RegisterInt("SortByTime", 0, 0, 2)
	t.RegisterInt("SortByPrio", 0, 0, 2)
	t.RegisterInt("DefaultPrio", trigger.DefaultPriority, 0, 9999)
	t.RegisterInt("FormWidth", 72, 20, 500)
	t.RegisterInt("FirstIndent", 0, 0, 132)
	t.RegisterInt("SubsIndent", 0, 0, 132)
	t.RegisterInt("WarningLevel", 0, 0, 1<<30)
	t.RegisterInt("DontQueue", 0, 0, 1)
	t.RegisterInt("DontFork", 0, 0, 1)
	t.RegisterInt("TestMode", 0, 0, 1)
	t.RegisterStr("EndSent", ".!?")
	t.RegisterStr("EndSentIg", `"')]}`)
	t.RegisterStr("OnceFile", "")
	t.RegisterStr("Latitude", "0.0")
	t.RegisterStr("Longitude", "0.0")
	t.RegisterStr("Location", "")

	t.Register(&vars.SysVar{
		Name:     "Version",
		Value:    value.NewStr(Version),
		ReadOnly: true,
	})
	t.Register(&vars.SysVar{
		Name:     "Today",
		NonConst: true,
		ReadOnly: true,
		Get:      func() (value.Value, error) { return value.NewDate(e.Today), nil },
	})
	t.Register(&vars.SysVar{
		Name:     "SysTime",
		NonConst: true,
		ReadOnly: true,
		Get:      func() (value.Value, error) { return value.NewTime(e.nowMinute()), nil },
	})
	t.Register(&vars.SysVar{
		Name:     "NumQueued",
		NonConst: true,
		ReadOnly: true,
		Get:      func() (value.Value, error) { return value.NewInt(int64(len(e.Queued))), nil },
	})
	t.Register(&vars.SysVar{
		Name:     "MinsFromUTC",
		NonConst: true,
		ReadOnly: true,
		Get: func() (value.Value, error) {
			_, off := e.realNow().Zone()
			return value.NewInt(int64(off / 60)), nil
		},
	})
	t.Register(&vars.SysVar{
		Name:     "NumTrig",
		NonConst: true,
		ReadOnly: true,
		Get:      func() (value.Value, error) { return value.NewInt(int64(e.numTriggered)), nil },
	})
	t.Register(&vars.SysVar{
		Name: "DateSep",
		Get:  func() (value.Value, error) { return value.NewStr(e.dateSep), nil },
		Set: func(v value.Value) error {
			if v.Str != "-" && v.Str != "/" {
				return errs.ErrDomain
			}
			e.dateSep = v.Str
			return nil
		},
	})
	t.Register(&vars.SysVar{
		Name: "TimeSep",
		Get:  func() (value.Value, error) { return value.NewStr(e.timeSep), nil },
		Set: func(v value.Value) error {
			if v.Str != ":" && v.Str != "." {
				return errs.ErrDomain
			}
			e.timeSep = v.Str
			return nil
		},
	})
	t.Register(&vars.SysVar{
		Name:     "Tz",
		NonConst: true,
		ReadOnly: true,
		Get: func() (value.Value, error) {
			zone, _ := e.realNow().Zone()
			return value.NewStr(zone), nil
		},
	})
}
