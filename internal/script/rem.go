package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rem/internal/dse"
	"rem/internal/errs"
	"rem/internal/expr"
	"rem/internal/trigger"
	"rem/internal/value"
)

// doRem handles REM and IFTRIG statements.
func (e *Engine) doRem(ev *expr.Evaluator, lt *lineTokens, isIfTrig bool) error {
	t, tt, body, err := trigger.ParseRem(lt)
	if err != nil {
		return err
	}
	if isIfTrig && t.Typ != trigger.NoType {
		return errs.ErrParse
	}

	// FROM is SCANFROM clamped to today.
	if t.ScanFrom == trigger.NoScan && t.From != trigger.NoFrom {
		t.ScanFrom = t.From
		if t.ScanFrom < e.Today {
			t.ScanFrom = e.Today
		}
	}

	var res trigger.Result
	if t.Typ == trigger.Sat {
		res, body, err = e.satisfy(ev, &t, tt, body)
	} else {
		res, err = trigger.Compute(e, e.Today, &t, tt)
	}
	if err != nil {
		if errors.Is(err, errs.ErrCantTrig) && t.MaybeUncomputable {
			if isIfTrig {
				return e.ifs.push(false, false)
			}
			return nil
		}
		if isIfTrig {
			e.report(err)
			return e.ifs.push(false, false)
		}
		return err
	}

	e.saveLastTrigger(&t, res)

	if t.AddOmit && res.Date >= 0 {
		if err := e.Omits.AddFull(res.Date); err != nil {
			return err
		}
	}

	if isIfTrig {
		should, err := trigger.ShouldTrigger(e, e.Today, &t, res)
		if err != nil {
			return err
		}
		return e.ifs.push(should, false)
	}
	if t.Typ == trigger.NoType || t.Typ == trigger.Sat {
		return nil
	}

	switch e.Mode {
	case ModeNext:
		return e.emitNext(ev, &t, res, body)
	case ModeSimple1, ModeSimple2:
		return e.emitSimple(ev, &t, res, body)
	}
	return e.emitNormal(ev, &t, res, body)
}

func (e *Engine) saveLastTrigger(t *trigger.Trigger, res trigger.Result) {
	e.lastTrig = *t
	e.lastTim = res.Tim
	e.lastTrigDate = res.Date
	e.lastTrigTime = res.Tim.Time
	e.lastValid = res.Date >= 0
}

// satisfy implements SATISFY: advance the trigger until the controlling
// expression is true. The body after the expression may carry a nested
// reminder type and its own body.
func (e *Engine) satisfy(ev *expr.Evaluator, t *trigger.Trigger, tt trigger.TimeTrig, body string) (trigger.Result, string, error) {
	src := strings.TrimSpace(body)
	var node *expr.Node
	var rest string
	if strings.HasPrefix(src, "[") {
		n, used, err := expr.Parse(src[1:], nil)
		if err != nil {
			return trigger.Result{Date: -1}, "", err
		}
		end := 1 + used
		if end >= len(src) || src[end] != ']' {
			return trigger.Result{Date: -1}, "", errs.ErrMissingEnd
		}
		node = n
		rest = src[end+1:]
	} else {
		n, used, err := expr.Parse(src, nil)
		if err != nil {
			return trigger.Result{Date: -1}, "", err
		}
		node = n
		rest = src[used:]
	}

	scan := t.ScanFrom
	satisfied := false
	var res trigger.Result
	for i := 0; i < e.MaxSatIter(); i++ {
		if scan != trigger.NoScan {
			t.ScanFrom = scan
		}
		var err error
		res, err = trigger.Compute(e, e.Today, t, tt)
		if err != nil {
			return res, "", err
		}
		if res.Date < 0 {
			break
		}
		e.saveLastTrigger(t, res)
		v, err := ev.Eval(node, nil)
		if err != nil {
			return res, "", err
		}
		if v.Truthy() {
			satisfied = true
			break
		}
		scan = res.Date + 1
	}
	if !satisfied {
		e.lastValid = false
		return trigger.Result{Date: -1, Tim: tt}, "", nil
	}

	// The remaining body must be empty or start with a reminder type.
	rest = strings.TrimSpace(rest)
	if rest == "" {
		t.Typ = trigger.Sat
		return res, "", nil
	}
	sub := newLineTokens(ev, rest)
	tok, err := sub.Token()
	if err != nil {
		return res, "", err
	}
	typ, pass, err := remTypeOf(tok, sub)
	if err != nil {
		return res, "", err
	}
	t.Typ = typ
	if pass != "" {
		t.Passthru = pass
	}
	return res, strings.TrimLeft(sub.Body(), " \t"), nil
}

// remTypeOf maps a token to a reminder type; SPECIAL consumes the passthru
// tag.
func remTypeOf(tok string, lt *lineTokens) (trigger.Type, string, error) {
	switch strings.ToUpper(tok) {
	case "MSG":
		return trigger.Msg, "", nil
	case "MSF":
		return trigger.Msf, "", nil
	case "RUN":
		return trigger.Run, "", nil
	case "CAL":
		return trigger.Cal, "", nil
	case "PS":
		return trigger.PS, "PS", nil
	case "PSFILE":
		return trigger.PSFile, "PSFILE", nil
	case "SPECIAL":
		pass, err := lt.Token()
		if err != nil || pass == "" {
			return trigger.NoType, "", errs.ErrEOLN
		}
		return trigger.Passthru, pass, nil
	}
	return trigger.NoType, "", fmt.Errorf("%w: `%s'", errs.ErrParse, tok)
}

// emitNormal is the default-mode emission path: queue timed reminders and
// print (or run) the ones that trigger today.
func (e *Engine) emitNormal(ev *expr.Evaluator, t *trigger.Trigger, res trigger.Result, body string) error {
	should, err := trigger.ShouldTrigger(e, e.Today, t, res)
	if err != nil {
		return err
	}
	if !should {
		return nil
	}
	if t.Once {
		e.checkOnce()
		if e.OnceToday {
			return nil
		}
	}

	timed := res.Tim.Time != dse.NoTime
	if timed && !e.NoQueue && !t.NoQueue && !e.Sys.Bool("DontQueue") && res.Date == e.Today {
		e.queueEntry(t, res, body)
	}

	switch t.Typ {
	case trigger.Cal, trigger.PS, trigger.PSFile, trigger.Passthru:
		// Calendar-only reminders produce nothing in normal mode.
		return nil
	}

	if timed && e.NoTimed {
		return nil
	}

	full, _, err := e.substBody(ev, body, t, res.Date, res.Tim.Time)
	if err != nil {
		return err
	}

	if t.Typ == trigger.Run {
		if e.runDisabled != 0 {
			return errs.ErrRunDisabled
		}
		return e.runCommand(full)
	}

	if t.Typ == trigger.Msf {
		full = Fill(full, e.fillOpts())
	}

	if e.Sys.Bool("DedupeReminders") {
		key := fmt.Sprintf("%d|%d|%s", res.Date, res.Tim.Time, full)
		if _, seen := e.dedupe[key]; seen {
			return nil
		}
		e.dedupe[key] = struct{}{}
	}

	e.numTriggered++
	if sb := e.sortBuffer(); sb != nil {
		sb.Add(res.Date, res.Tim.Time, t.Priority, full, t.Typ)
		return nil
	}
	e.printBanner(ev)
	if e.FileInfo {
		fmt.Fprintf(e.Out, "# fileinfo %d %s\n", e.curLine, e.displayFile())
	}
	fmt.Fprintln(e.Out, full)
	return nil
}

func (e *Engine) fillOpts() FillOpts {
	return FillOpts{
		Width:       int(e.Sys.Int("FormWidth")),
		FirstIndent: int(e.Sys.Int("FirstIndent")),
		SubsIndent:  int(e.Sys.Int("SubsIndent")),
		EndSent:     e.Sys.Str("EndSent"),
		EndSentIg:   e.Sys.Str("EndSentIg"),
	}
}

func (e *Engine) printBanner(ev *expr.Evaluator) {
	if e.bannerPrinted {
		return
	}
	e.bannerPrinted = true
	if strings.TrimSpace(e.Banner) == "" {
		return
	}
	full, _, err := e.substBody(ev, e.Banner, nil, e.Today, dse.NoTime)
	if err == nil && full != "" {
		fmt.Fprintln(e.Out, full)
	}
}

func (e *Engine) queueEntry(t *trigger.Trigger, res trigger.Result, body string) {
	e.Queued = append(e.Queued, QueuedReminder{
		Trig: *t,
		Tim:  res.Tim,
		Body: body,
		File: e.curFile,
		Line: e.curLine,
	})
}

// emitNext lists the next trigger date (the -n mode).
func (e *Engine) emitNext(ev *expr.Evaluator, t *trigger.Trigger, res trigger.Result, body string) error {
	if res.Date < 0 || res.Date < e.Today {
		return nil
	}
	switch t.Typ {
	case trigger.Msg, trigger.Msf, trigger.Cal:
	default:
		return nil
	}
	_, cal, err := e.substBody(ev, body, t, res.Date, res.Tim.Time)
	if err != nil {
		return err
	}
	y, m, d := dse.ToYMD(res.Date)
	fmt.Fprintf(e.Out, "%04d/%02d/%02d %s\n", y, m+1, d, cal)
	return nil
}

// emitSimple produces the simple-calendar records for the current Today:
// the legacy one-line text form at level 1, per-line JSON objects at
// level 2.
func (e *Engine) emitSimple(ev *expr.Evaluator, t *trigger.Trigger, res trigger.Result, body string) error {
	if res.Date != e.Today {
		return nil
	}
	if t.Typ == trigger.Run {
		return nil
	}

	raw := body
	full, cal, err := e.substBody(ev, body, t, res.Date, res.Tim.Time)
	if err != nil {
		return err
	}

	y, m, d := dse.ToYMD(res.Date)
	pass := t.Passthru
	if pass == "" {
		pass = "*"
	}
	timeField := "*"
	if res.Tim.Time != dse.NoTime {
		timeField = fmt.Sprintf("%d", res.Tim.Time)
	}
	durField := "*"
	if res.Tim.Duration != dse.NoTime {
		durField = fmt.Sprintf("%d", res.Tim.Duration)
	}

	if e.Mode == ModeSimple1 {
		e.numTriggered++
		fmt.Fprintf(e.Out, "%04d/%02d/%02d %s %s %s %s %s\n",
			y, m+1, d, pass, t.TagString(), durField, timeField, full)
		return nil
	}

	rec := map[string]any{
		"date":          fmt.Sprintf("%04d-%02d-%02d", y, m+1, d),
		"passthru":      pass,
		"tags":          t.TagString(),
		"duration":      durField,
		"time":          timeField,
		"nonconst_expr": boolInt(ev.NonConst),
		"if_depth":      e.ifs.depth(),
		"r":             -1,
		"g":             -1,
		"b":             -1,
		"rawbody":       raw,
		"calendar_body": cal,
		"plain_body":    full,
		"body":          full,
	}
	if info := infoMap(t); info != nil {
		rec["info"] = info
	}
	if t.Typ == trigger.Passthru && strings.EqualFold(t.Passthru, "COLOR") {
		var r, g, b int
		if n, err := fmt.Sscanf(strings.TrimSpace(raw), "%d %d %d", &r, &g, &b); n == 3 && err == nil {
			rec["r"], rec["g"], rec["b"] = r, g, b
		}
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	e.numTriggered++
	fmt.Fprintf(e.Out, "%s\n", line)
	return nil
}

func infoMap(t *trigger.Trigger) map[string]string {
	if len(t.Infos) == 0 {
		return nil
	}
	out := make(map[string]string, len(t.Infos))
	for _, in := range t.Infos {
		i := strings.IndexByte(in, ':')
		if i < 0 {
			continue
		}
		out[in[:i]] = strings.TrimSpace(in[i+1:])
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CallSched invokes a user sched() function; the argument is the number of
// times the scheduler has run for the queue entry.
func (e *Engine) CallSched(name string, run int) (value.Value, error) {
	return e.evalUserValue(name, []value.Value{value.NewInt(int64(run))})
}

// RunShellCommand executes a RUN reminder body on behalf of the queue.
func (e *Engine) RunShellCommand(cmd string) error { return e.runCommand(cmd) }

// evalUserValue evaluates a user function by name with the given arguments;
// the queue's sched() hook uses it.
func (e *Engine) evalUserValue(name string, args []value.Value) (value.Value, error) {
	f, ok := e.userFuncs.Get(name)
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %s", errs.ErrUndefFunc, name)
	}
	if len(f.Args) != len(args) {
		return value.Value{}, fmt.Errorf("%s: %w", name, errs.Err2Few)
	}
	return e.newEvaluator().Eval(f.Body, args)
}
