// Package script ties the reminder engine together: the cached file source,
// the omit and if contexts, the command dispatcher, the substitution engine
// and the per-day main loop.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"rem/internal/dse"
	"rem/internal/errs"
	"rem/internal/expr"
	"rem/internal/trans"
	"rem/internal/trigger"
	"rem/internal/value"
	"rem/internal/vars"
)

// QueuedReminder is one timed reminder collected for the queue phase.
type QueuedReminder struct {
	Trig trigger.Trigger
	Tim  trigger.TimeTrig
	Body string
	File string
	Line int
}

// Run-disabled mask bits.
const (
	RunOffCmdline = 1 << iota // -r flag; cannot be re-enabled by a script
	RunOffScript              // RUN OFF
	RunNotOwner               // current file has an untrusted owner
)

// Output modes.
type Mode int

const (
	ModeNormal Mode = iota
	ModeNext
	ModeSimple1
	ModeSimple2
)

// errExit aborts processing after an EXIT command.
var errExit = errors.New("exit requested")

// Engine is the whole interpreter state for one run, threaded through every
// call instead of the original's globals.
type Engine struct {
	Out    io.Writer
	ErrOut io.Writer

	Vars      *vars.Store
	Sys       *vars.SysTable
	userFuncs *expr.FuncStore
	Trans     *trans.Table
	Files     *Source
	Omits     *OmitContext

	Today        int
	TimeOverride int // minutes, or dse.NoTime for the real clock
	Mode         Mode
	TestMode     bool
	NoQueue      bool // -q
	NoTimed      bool // -a: suppress today's timed reminders
	FileInfo     bool // prefix emissions with "# fileinfo line filename"
	OnceToday    bool // the once-file already records today

	Banner string

	// Queued collects the day's timed reminders for the queue phase.
	Queued []QueuedReminder

	ifs           ifStack
	ifBase        int
	includeDepth  int
	curFile       string
	curLine       int
	exprOff       bool
	runDisabled   int
	numTriggered  int
	bannerPrinted bool
	onceChecked   bool
	dedupe        map[string]struct{}
	sortBuf       *SortBuffer

	lastTrig     trigger.Trigger
	lastTim      trigger.TimeTrig
	lastTrigDate int
	lastTrigTime int
	lastValid    bool

	dateSep string
	timeSep string

	exitCode int

	// realNow is injectable for deterministic tests.
	realNow func() time.Time
}

// NowProvider supplies the current wall-clock time; tests may replace it.
type NowProvider func() time.Time

// New builds an engine writing to out/errw, with today taken from now.
func New(out, errw io.Writer, now NowProvider) *Engine {
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		Out:          out,
		ErrOut:       errw,
		Vars:         vars.NewStore(),
		Sys:          vars.NewSysTable(),
		userFuncs:    expr.NewFuncStore(),
		Trans:        trans.NewTable(),
		Files:        NewSource(),
		Omits:        NewOmitContext(),
		TimeOverride: dse.NoTime,
		Banner:       DefaultBanner,
		dateSep:      "-",
		timeSep:      ":",
		dedupe:       make(map[string]struct{}),
		realNow:      now,
	}
	e.Today = dse.FromTime(now())
	e.registerSysVars()
	return e
}

// DefaultBanner is substituted before the first emitted reminder.
const DefaultBanner = "Reminders for %b, %d %c, %f:"

// SetRunDisabled sets command-line run disabling (-r / -rr).
func (e *Engine) SetRunDisabled(level int) {
	if level >= 1 {
		e.runDisabled |= RunOffCmdline
	}
	if level >= 2 {
		e.exprOff = true
	}
}

// ExitCode reports the value of an EXIT command (0 otherwise).
func (e *Engine) ExitCode() int { return e.exitCode }

// NumTriggered reports how many reminders were emitted this iteration.
func (e *Engine) NumTriggered() int { return e.numTriggered }

// nowMinute returns the effective minute of day (honoring a TIME override).
func (e *Engine) nowMinute() int {
	if e.TimeOverride != dse.NoTime {
		return e.TimeOverride
	}
	t := e.realNow()
	return t.Hour()*60 + t.Minute()
}

// BeginIteration resets per-iteration state: non-preserved variables, the
// dedupe set, the omit contexts and the trigger counters.
func (e *Engine) BeginIteration() {
	e.Vars.Clear(false)
	e.dedupe = make(map[string]struct{})
	e.Omits.Reset()
	e.numTriggered = 0
	e.bannerPrinted = false
	e.onceChecked = false
	e.OnceToday = false
	e.lastValid = false
	e.Queued = nil
	e.sortBuf = nil
}

// sortBuffer returns the sort buffer when any $SortBy* variable is set,
// creating it on first use so a script's own SET takes effect.
func (e *Engine) sortBuffer() *SortBuffer {
	byDate := int(e.Sys.Int("SortByDate"))
	byTime := int(e.Sys.Int("SortByTime"))
	byPrio := int(e.Sys.Int("SortByPrio"))
	if byDate == SortNone && byTime == SortNone && byPrio == SortNone {
		return nil
	}
	if e.sortBuf == nil {
		e.sortBuf = NewSortBuffer(byDate, byTime, byPrio)
	}
	return e.sortBuf
}

// RunFile processes the top-level reminder file for the current Today.
// It returns the EXIT code error sentinel only internally; callers get nil
// on normal completion.
func (e *Engine) RunFile(path string) error {
	err := e.processFile(path)
	if err != nil && !errors.Is(err, errExit) {
		return err
	}
	if n := e.Vars.UnmatchedPushes(); n > 0 {
		e.warn(fmt.Sprintf("%d unmatched PUSH-VARS", n))
	}
	if n := e.userFuncs.UnmatchedPushes(); n > 0 {
		e.warn(fmt.Sprintf("%d unmatched PUSH-FUNCS", n))
	}
	if n := e.Omits.UnmatchedPushes(); n > 0 {
		e.warn(fmt.Sprintf("%d unmatched PUSH-OMIT-CONTEXT", n))
	}
	e.drainSort()
	return nil
}

func (e *Engine) processFile(path string) error {
	if e.includeDepth >= e.Files.MaxDepth {
		return errs.ErrNestedInc
	}
	lines, notOwner, err := e.Files.Load(path)
	if err != nil {
		return err
	}
	return e.processLines(path, lines, notOwner)
}

func (e *Engine) processLines(path string, lines []Line, notOwner bool) error {
	prevFile, prevLine := e.curFile, e.curLine
	prevBase := e.ifBase
	prevNotOwner := e.runDisabled & RunNotOwner
	e.curFile = path
	e.ifBase = e.ifs.depth()
	e.includeDepth++
	if notOwner {
		e.runDisabled |= RunNotOwner
	}
	defer func() {
		if n := e.ifs.popTo(e.ifBase); n > 0 {
			e.warn("missing ENDIF")
		}
		e.includeDepth--
		e.runDisabled = (e.runDisabled &^ RunNotOwner) | prevNotOwner
		e.ifBase = prevBase
		e.curFile, e.curLine = prevFile, prevLine
	}()

	for _, l := range lines {
		if l.Text == "" {
			e.curLine = l.Num
			e.report(errs.ErrLineTooLong)
			continue
		}
		e.curLine = l.Num
		if err := e.dispatchLine(l.Text); err != nil {
			if errors.Is(err, errExit) || errors.Is(err, errs.ErrNestedInc) {
				return err
			}
			e.report(err)
		}
	}
	return nil
}

// newEvaluator builds a per-line evaluator.
func (e *Engine) newEvaluator() *expr.Evaluator {
	return expr.New(e)
}

var commandNames = []string{
	"REM", "IF", "ELSE", "ENDIF", "IFTRIG", "INCLUDE", "INCLUDER",
	"INCLUDESYS", "INCLUDECMD", "OMIT", "PUSH-OMIT-CONTEXT",
	"POP-OMIT-CONTEXT", "CLEAR-OMIT-CONTEXT", "PUSH-VARS", "POP-VARS",
	"PUSH-FUNCS", "POP-FUNCS", "SET", "UNSET", "PRESERVE", "FSET",
	"FUNSET", "FRENAME", "BANNER", "DEBUG", "DUMP", "DUMPVARS", "FLUSH",
	"EXIT", "ERRMSG", "RUN", "EXPR", "TRANSLATE",
}

func (e *Engine) dispatchLine(text string) error {
	ev := e.newEvaluator()
	lt := newLineTokens(ev, text)

	// The first token is read raw so a false IF branch never evaluates
	// expressions.
	rawTok := firstRawToken(text)
	cmd := strings.ToUpper(rawTok)

	if e.ifs.shouldIgnore() {
		// Only the structural commands are dispatched inside a false
		// branch; SET/FSET mark their target non-constant.
		switch cmd {
		case "IF", "IFTRIG":
			return e.ifs.push(true, false)
		case "ELSE":
			return e.ifs.encounterElse(e.ifBase)
		case "ENDIF":
			return e.ifs.encounterEndif(e.ifBase)
		case "SET":
			skipRawToken(lt, rawTok)
			if name, err := lt.Token(); err == nil && name != "" {
				e.Vars.MarkNonConst(name)
			}
			return nil
		case "FSET":
			return nil
		}
		return nil
	}

	skipRawToken(lt, rawTok)

	switch cmd {
	case "REM":
		return e.doRem(ev, lt, false)
	case "IFTRIG":
		return e.doRem(ev, lt, true)
	case "IF":
		return e.doIf(ev, lt)
	case "ELSE":
		return e.ifs.encounterElse(e.ifBase)
	case "ENDIF":
		return e.ifs.encounterEndif(e.ifBase)
	case "SET":
		return e.doSet(ev, lt)
	case "UNSET":
		return e.doUnset(lt)
	case "PRESERVE":
		return e.doPreserve(lt)
	case "FSET":
		return e.doFset(lt)
	case "FUNSET":
		return e.doFunset(lt)
	case "FRENAME":
		return e.doFrename(lt)
	case "INCLUDE", "INCLUDER", "INCLUDESYS", "INCLUDECMD":
		return e.doInclude(cmd, lt)
	case "OMIT":
		return e.doOmit(lt)
	case "PUSH-OMIT-CONTEXT":
		e.Omits.Push()
		return lt.VerifyEOL()
	case "POP-OMIT-CONTEXT":
		if err := e.Omits.Pop(); err != nil {
			return err
		}
		return lt.VerifyEOL()
	case "CLEAR-OMIT-CONTEXT":
		e.Omits.Clear()
		return lt.VerifyEOL()
	case "PUSH-VARS":
		e.Vars.PushAll()
		return lt.VerifyEOL()
	case "POP-VARS":
		if err := e.Vars.PopAll(); err != nil {
			return err
		}
		return lt.VerifyEOL()
	case "PUSH-FUNCS":
		e.userFuncs.PushAll()
		return lt.VerifyEOL()
	case "POP-FUNCS":
		if err := e.userFuncs.PopAll(); err != nil {
			return err
		}
		return lt.VerifyEOL()
	case "BANNER":
		e.Banner = strings.TrimLeft(lt.Body(), " \t")
		return nil
	case "DEBUG":
		lt.Body() // accepted and ignored; debugging is driven by flags
		return nil
	case "DUMP", "DUMPVARS":
		return e.doDump(lt)
	case "FLUSH":
		e.Files.cache = make(map[string]*cachedFile)
		return lt.VerifyEOL()
	case "EXIT":
		if tok, err := lt.Token(); err == nil && tok != "" {
			fmt.Sscanf(tok, "%d", &e.exitCode)
		}
		return errExit
	case "ERRMSG":
		full, _, err := e.substBody(ev, strings.TrimLeft(lt.Body(), " \t"), nil, e.Today, dse.NoTime)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.ErrOut, full)
		return nil
	case "RUN":
		return e.doRunToggle(lt)
	case "EXPR":
		return e.doExprToggle(lt)
	case "TRANSLATE":
		return e.doTranslate(lt)
	case "__EOF__":
		return nil
	}

	// Unknown initial token: treat as a REM statement, with a warning.
	if s := e.suggest(rawTok); s != "" {
		e.warn(fmt.Sprintf("unknown command `%s' (did you mean %s?); assuming REM", rawTok, s))
	} else {
		e.warn(fmt.Sprintf("unknown command `%s'; assuming REM", rawTok))
	}
	lt2 := newLineTokens(ev, text)
	return e.doRem(ev, lt2, false)
}

// firstRawToken returns the first whitespace token without expression
// expansion.
func firstRawToken(s string) string {
	f := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// skipRawToken advances lt past the already-examined first token.
func skipRawToken(lt *lineTokens, tok string) {
	lt.skipSpace()
	lt.pos += len(tok)
}

// suggest fuzzy-matches an unknown command against the known names.
func (e *Engine) suggest(tok string) string {
	matches := fuzzy.Find(strings.ToUpper(tok), commandNames)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

func (e *Engine) doIf(ev *expr.Evaluator, lt *lineTokens) error {
	src := stripComment(lt.Body())
	node, err := expr.ParseAll(strings.TrimSpace(trimBrackets(src)), nil)
	if err != nil {
		return err
	}
	v, err := ev.Eval(node, nil)
	if err != nil {
		return err
	}
	return e.ifs.push(v.Truthy(), !ev.NonConst)
}

func (e *Engine) doSet(ev *expr.Evaluator, lt *lineTokens) error {
	name, err := lt.Token()
	if err != nil {
		return err
	}
	if name == "" {
		return errs.ErrEOLN
	}
	src := stripComment(lt.Body())
	src = strings.TrimSpace(src)
	src = strings.TrimPrefix(src, "=")
	node, err := expr.ParseAll(strings.TrimSpace(trimBrackets(src)), nil)
	if err != nil {
		return err
	}
	v, err := ev.Eval(node, nil)
	if err != nil {
		return err
	}
	if strings.HasPrefix(name, "$") {
		return e.Sys.SetValue(name[1:], v)
	}
	return e.Vars.Set(name, v, ev.NonConst, e.curFile, e.curLine)
}

func (e *Engine) doUnset(lt *lineTokens) error {
	n := 0
	for {
		name, err := lt.Token()
		if err != nil {
			return err
		}
		if name == "" || name[0] == '#' || name[0] == ';' {
			break
		}
		if !e.Vars.Unset(name) {
			e.warn(fmt.Sprintf("variable `%s' not defined", name))
		}
		n++
	}
	if n == 0 {
		return errs.ErrEOLN
	}
	return nil
}

func (e *Engine) doPreserve(lt *lineTokens) error {
	n := 0
	for {
		name, err := lt.Token()
		if err != nil {
			return err
		}
		if name == "" || name[0] == '#' || name[0] == ';' {
			break
		}
		if err := e.Vars.Preserve(name); err != nil {
			return err
		}
		n++
	}
	if n == 0 {
		return errs.ErrEOLN
	}
	return nil
}

// doFset parses `FSET name(arg, ...) expr`.
func (e *Engine) doFset(lt *lineTokens) error {
	rest := strings.TrimSpace(stripComment(lt.Body()))
	open := strings.IndexByte(rest, '(')
	if open <= 0 {
		return errs.ErrParse
	}
	name := strings.TrimSpace(rest[:open])
	if !vars.ValidName(name) {
		return fmt.Errorf("%w: %s", errs.ErrBadID, name)
	}
	closeIdx := strings.IndexByte(rest[open:], ')')
	if closeIdx < 0 {
		return errs.ErrMissingParen
	}
	closeIdx += open
	var args []string
	argSrc := strings.TrimSpace(rest[open+1 : closeIdx])
	if argSrc != "" {
		for _, a := range strings.Split(argSrc, ",") {
			a = strings.TrimSpace(a)
			if !vars.ValidName(a) {
				return fmt.Errorf("%w: %s", errs.ErrBadID, a)
			}
			args = append(args, a)
		}
	}
	bodySrc := strings.TrimSpace(rest[closeIdx+1:])
	bodySrc = strings.TrimSpace(strings.TrimPrefix(bodySrc, "="))
	bodySrc = strings.TrimSpace(trimBrackets(bodySrc))
	body, err := expr.ParseAll(bodySrc, args)
	if err != nil {
		return err
	}
	isConst := expr.TreeIsConst(body, e.userFuncs)
	return e.userFuncs.Set(&expr.UserFunc{
		Name:    name,
		Args:    args,
		Body:    body,
		IsConst: isConst,
		File:    e.curFile,
		Line:    e.curLine,
	})
}

func (e *Engine) doFunset(lt *lineTokens) error {
	n := 0
	for {
		name, err := lt.Token()
		if err != nil {
			return err
		}
		if name == "" || name[0] == '#' || name[0] == ';' {
			break
		}
		if !e.userFuncs.Unset(name) {
			e.warn(fmt.Sprintf("function `%s' not defined", name))
		}
		n++
	}
	if n == 0 {
		return errs.ErrEOLN
	}
	return nil
}

func (e *Engine) doFrename(lt *lineTokens) error {
	oldName, err := lt.Token()
	if err != nil {
		return err
	}
	newName, err := lt.Token()
	if err != nil {
		return err
	}
	if oldName == "" || newName == "" {
		return errs.ErrEOLN
	}
	return e.userFuncs.Rename(oldName, newName)
}

func (e *Engine) doInclude(cmd string, lt *lineTokens) error {
	if cmd == "INCLUDECMD" {
		shellCmd := strings.TrimSpace(stripComment(lt.Body()))
		if shellCmd == "" {
			return errs.ErrEOLN
		}
		if e.runDisabled != 0 {
			return errs.ErrRunDisabled
		}
		lines, err := e.Files.LoadCmd(shellCmd)
		if err != nil {
			return err
		}
		return e.processLines("|"+shellCmd, lines, false)
	}

	path, err := lt.Token()
	if err != nil {
		return err
	}
	if path == "" {
		return errs.ErrEOLN
	}
	switch cmd {
	case "INCLUDER":
		if e.curFile != "" && e.curFile != "-" {
			path = filepath.Join(filepath.Dir(e.curFile), path)
		}
	case "INCLUDESYS":
		path = filepath.Join(e.Files.SysDir, path)
	}
	targets, err := e.Files.ExpandDir(path)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := e.processFile(t); err != nil {
			if errors.Is(err, errExit) {
				return err
			}
			e.report(err)
		}
	}
	return nil
}

// doOmit handles global OMIT: weekday names extend the weekday mask, a date
// with a year is a full omit, without one a partial omit.
func (e *Engine) doOmit(lt *lineTokens) error {
	d, m, y := trigger.NoDay, trigger.NoMon, trigger.NoYr
	sawWd := false
	for {
		tok, err := lt.Token()
		if err != nil {
			return err
		}
		if tok == "" || tok[0] == '#' || tok[0] == ';' {
			break
		}
		if wd := matchOmitWeekday(tok); wd >= 0 {
			e.Omits.AddWeekday(wd)
			sawWd = true
			continue
		}
		if mm := matchOmitMonth(tok); mm >= 0 {
			m = mm
			continue
		}
		var n int
		if _, err := fmt.Sscanf(tok, "%d", &n); err == nil && !strings.Contains(tok, "-") {
			if n >= 1000 {
				y = n
			} else {
				d = n
			}
			continue
		}
		if serial, ok := parseISO(tok); ok {
			yy, mm2, dd := dse.ToYMD(serial)
			y, m, d = yy, mm2, dd
			continue
		}
		return fmt.Errorf("%w: `%s'", errs.ErrUnknownToken, tok)
	}
	if d == trigger.NoDay && m == trigger.NoMon {
		if sawWd {
			return nil
		}
		return errs.ErrEOLN
	}
	if d == trigger.NoDay || m == trigger.NoMon {
		return errs.ErrBadDate
	}
	if y == trigger.NoYr {
		if d > dse.DaysInMonth(m, 2000) {
			return errs.ErrBadDate
		}
		return e.Omits.AddPartial(m, d)
	}
	if !dse.Valid(y, m, d) {
		return errs.ErrBadDate
	}
	return e.Omits.AddFull(dse.FromYMD(y, m, d))
}

func (e *Engine) doRunToggle(lt *lineTokens) error {
	tok, err := lt.Token()
	if err != nil {
		return err
	}
	switch strings.ToUpper(tok) {
	case "ON":
		// Only the script's own disable can be lifted.
		e.runDisabled &^= RunOffScript
	case "OFF":
		e.runDisabled |= RunOffScript
	default:
		return errs.ErrParse
	}
	return lt.VerifyEOL()
}

func (e *Engine) doExprToggle(lt *lineTokens) error {
	tok, err := lt.Token()
	if err != nil {
		return err
	}
	switch strings.ToUpper(tok) {
	case "ON":
		e.exprOff = false
	case "OFF":
		e.exprOff = true
	default:
		return errs.ErrParse
	}
	return lt.VerifyEOL()
}

func (e *Engine) doTranslate(lt *lineTokens) error {
	from, err := lt.Token()
	if err != nil {
		return err
	}
	if from == "" {
		return errs.ErrEOLN
	}
	if strings.EqualFold(from, "DUMP") {
		e.Trans.Dump(e.Out)
		return nil
	}
	to, err := lt.Token()
	if err != nil {
		return err
	}
	e.Trans.Set(from, to)
	return nil
}

func (e *Engine) doDump(lt *lineTokens) error {
	var names []string
	for {
		tok, err := lt.Token()
		if err != nil {
			return err
		}
		if tok == "" || tok[0] == '#' || tok[0] == ';' {
			break
		}
		if tok == "-c" {
			continue
		}
		names = append(names, tok)
	}
	if len(names) == 0 {
		for _, v := range e.Vars.All() {
			fmt.Fprintf(e.Out, "%s = %s\n", v.Name, printValue(v.Value))
		}
		sysNames := e.Sys.Names()
		sort.Strings(sysNames)
		for _, n := range sysNames {
			if v, _, err := e.Sys.Get(n); err == nil {
				fmt.Fprintf(e.Out, "$%s = %s\n", n, printValue(v))
			}
		}
		return nil
	}
	for _, n := range names {
		if strings.HasPrefix(n, "$") {
			if v, _, err := e.Sys.Get(n[1:]); err == nil {
				fmt.Fprintf(e.Out, "%s = %s\n", n, printValue(v))
			} else {
				fmt.Fprintf(e.Out, "%s: undefined\n", n)
			}
			continue
		}
		if v, ok := e.Vars.Lookup(n); ok {
			fmt.Fprintf(e.Out, "%s = %s\n", v.Name, printValue(v.Value))
		} else {
			fmt.Fprintf(e.Out, "%s: undefined\n", n)
		}
	}
	return nil
}

// printValue renders a value the way DUMP shows it: strings quoted,
// everything else canonical.
func printValue(v value.Value) string {
	if v.Type == value.Str {
		return fmt.Sprintf("%q", v.Str)
	}
	return v.String()
}

// stripComment drops a trailing #/; comment outside quotes.
func stripComment(s string) string {
	inQ := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQ = !inQ
		case '#', ';':
			if !inQ {
				return s[:i]
			}
		}
	}
	return s
}

// trimBrackets removes one optional [ ] wrapping an expression.
func trimBrackets(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
		return t[1 : len(t)-1]
	}
	return t
}

func parseISO(tok string) (int, bool) {
	var y, m, d int
	if n, err := fmt.Sscanf(tok, "%d-%d-%d", &y, &m, &d); n == 3 && err == nil && dse.Valid(y, m-1, d) {
		return dse.FromYMD(y, m-1, d), true
	}
	return 0, false
}

func matchOmitWeekday(tok string) int {
	up := strings.ToUpper(tok)
	if len(up) < 3 {
		return -1
	}
	for wd := 0; wd < 7; wd++ {
		full := strings.ToUpper(dse.DayName((wd + 1) % 7))
		if strings.HasPrefix(full, up) {
			return wd
		}
	}
	return -1
}

func matchOmitMonth(tok string) int {
	up := strings.ToUpper(tok)
	if len(up) < 3 {
		return -1
	}
	for m := 0; m < 12; m++ {
		if strings.HasPrefix(strings.ToUpper(dse.MonthName(m)), up) {
			return m
		}
	}
	return -1
}

// warn prints a warning with the file/line prefix.
func (e *Engine) warn(msg string) {
	if e.curFile != "" {
		fmt.Fprintf(e.ErrOut, "%s(%d): %s\n", e.displayFile(), e.curLine, msg)
		return
	}
	fmt.Fprintln(e.ErrOut, msg)
}

// report prints an error with the file/line prefix and counts it.
func (e *Engine) report(err error) {
	var pe *errs.PosError
	if errors.As(err, &pe) {
		fmt.Fprintln(e.ErrOut, pe.Error())
	} else {
		fmt.Fprintf(e.ErrOut, "%s(%d): %v\n", e.displayFile(), e.curLine, err)
	}
}

func (e *Engine) displayFile() string {
	if e.curFile == "-" {
		return "-stdin-"
	}
	return e.curFile
}

// drainSort flushes the sort buffer at end of run.
func (e *Engine) drainSort() {
	if e.sortBuf == nil {
		return
	}
	for _, text := range e.sortBuf.Drain() {
		fmt.Fprintln(e.Out, text)
	}
}

// shellOut runs a command for the shell() builtin and RUN bodies.
func (e *Engine) shellOut(cmd string, maxlen int) (string, error) {
	out, err := exec.Command("/bin/sh", "-c", cmd).Output()
	if err != nil {
		if len(out) == 0 {
			return "", errs.ErrCantAccess
		}
	}
	s := strings.ReplaceAll(strings.TrimRight(string(out), "\n"), "\n", " ")
	if maxlen > 0 && len(s) > maxlen {
		s = s[:maxlen]
	}
	return s, nil
}

// runCommand executes a RUN-type reminder body.
func (e *Engine) runCommand(cmd string) error {
	if e.runDisabled != 0 {
		return errs.ErrRunDisabled
	}
	c := exec.Command("/bin/sh", "-c", cmd)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
