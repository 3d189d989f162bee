package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rem/internal/dse"
)

// StopReason tells the caller why the serve loop ended.
type StopReason int

const (
	StopEmpty    StopReason = iota // queue drained, not in daemon mode
	StopRollover                   // the date rolled over; caller rereads
	StopReread                     // REREAD command or file change
	StopExit                       // EXIT command
)

// ServeOpts configures the daemon loop.
type ServeOpts struct {
	// Daemon > 0 wakes every Daemon minutes and keeps running on an empty
	// queue; <= 0 is server mode with the stdin protocol.
	Daemon int
	// Commands supplies protocol lines; nil disables the protocol.
	Commands <-chan string
	// Changed signals that the source file changed (fsnotify or mtime poll).
	Changed <-chan struct{}
}

// Serve runs the queue until it drains, the date rolls over, the watcher
// reports a change, or the protocol says otherwise. SIGINT prints the queue
// and continues.
func (q *Queue) Serve(opts ServeOpts) StopReason {
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT)
	defer signal.Stop(sigint)

	startSerial := q.nowSerial()
	q.InitTimes(q.nowMinute() - 1)

	for {
		if q.nowSerial() != startSerial {
			return StopRollover
		}
		next := q.NextFire()
		if next == nil && opts.Daemon <= 0 && opts.Commands == nil {
			return StopEmpty
		}

		wait := q.waitFor(next, opts.Daemon)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if q.nowSerial() != startSerial {
				return StopRollover
			}
			q.FireDue(q.nowMinute())
			if q.NextFire() == nil && opts.Daemon <= 0 && opts.Commands == nil {
				return StopEmpty
			}
		case <-sigint:
			timer.Stop()
			q.DumpQueue(q.Err)
		case <-opts.Changed:
			timer.Stop()
			return StopReread
		case line, ok := <-opts.Commands:
			timer.Stop()
			if !ok {
				return StopExit
			}
			switch q.HandleCommand(line) {
			case StopReread:
				return StopReread
			case StopExit:
				return StopExit
			}
		}
	}
}

// waitFor picks the sleep until the next event minute.
func (q *Queue) waitFor(next *Entry, daemon int) time.Duration {
	now := q.Now()
	nowMin := now.Hour()*60 + now.Minute()
	target := dse.MinutesPerDay // default: wait for midnight rollover
	if next != nil && next.NextTime < target {
		target = next.NextTime
	}
	if daemon > 0 && nowMin+daemon < target {
		target = nowMin + daemon
	}
	mins := target - nowMin
	if mins < 0 {
		mins = 0
	}
	// Wake at the top of the target minute.
	d := time.Duration(mins)*time.Minute - time.Duration(now.Second())*time.Second
	if d < time.Second {
		d = time.Second
	}
	return d
}

// StopContinue is returned by HandleCommand for commands that keep serving.
const StopContinue = StopReason(-1)

// HandleCommand processes one protocol line and returns StopContinue,
// StopReread or StopExit.
func (q *Queue) HandleCommand(line string) StopReason {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return StopContinue
	}
	cmd := strings.ToUpper(fields[0])
	switch cmd {
	case "STATUS":
		q.respondStatus(cmd)
	case "QUEUE":
		q.DumpQueue(q.Out)
	case "JSONQUEUE":
		q.dumpQueueJSON(q.Out)
	case "DEL":
		if len(fields) == 2 && q.Delete(fields[1]) {
			q.respondStatus(cmd)
		} else {
			q.respondError(cmd, "no such queue entry")
		}
	case "REREAD":
		if q.JSONMode {
			writeJSONLine(q.Out, map[string]any{"response": "reread", "command": cmd})
		} else {
			fmt.Fprintln(q.Out, "NOTE reread")
		}
		return StopReread
	case "EXIT":
		return StopExit
	case "TRANSLATE":
		q.respondTranslate(line, fields)
	case "TRANSLATE_DUMP":
		q.respondTranslateDump()
	default:
		q.respondError(cmd, "unknown command")
	}
	return StopContinue
}

func (q *Queue) respondStatus(cmd string) {
	n := q.NQueued()
	if q.JSONMode {
		writeJSONLine(q.Out, map[string]any{"response": "queued", "nqueued": n, "command": cmd})
		return
	}
	fmt.Fprintf(q.Out, "NOTE queued %d\n", n)
}

func (q *Queue) respondError(cmd, msg string) {
	if q.JSONMode {
		writeJSONLine(q.Out, map[string]any{"response": "error", "error": msg, "command": cmd})
		return
	}
	fmt.Fprintf(q.Out, "NOTE error %s\n", msg)
}

func (q *Queue) respondTranslate(line string, fields []string) {
	if len(fields) < 2 {
		q.respondError("TRANSLATE", "missing argument")
		return
	}
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
	if q.Hooks.Translate == nil {
		return
	}
	out, ok := q.Hooks.Translate(arg)
	if !ok {
		if q.JSONMode {
			writeJSONLine(q.Out, map[string]any{"response": "translate", "from": arg})
		}
		return
	}
	writeJSONLine(q.Out, map[string]any{"response": "translate", "from": arg, "to": out})
}

func (q *Queue) respondTranslateDump() {
	if q.Hooks.TranslateAll == nil {
		return
	}
	pairs := q.Hooks.TranslateAll()
	if q.JSONMode {
		m := make(map[string]string, len(pairs))
		for _, p := range pairs {
			m[p[0]] = p[1]
		}
		writeJSONLine(q.Out, map[string]any{"response": "translate_dump", "translations": m})
		return
	}
	fmt.Fprintln(q.Out, "NOTE translate_dump")
	for _, p := range pairs {
		fmt.Fprintf(q.Out, "%q %q\n", p[0], p[1])
	}
	fmt.Fprintln(q.Out, "NOTE endtranslate_dump")
}

// DumpQueue prints every live entry, NOTE-framed in text mode.
func (q *Queue) DumpQueue(w io.Writer) {
	if q.JSONMode {
		q.dumpQueueJSON(w)
		return
	}
	fmt.Fprintln(w, "NOTE queue")
	for _, e := range q.Entries {
		if e.NextTime == NoTime {
			continue
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n",
			e.QID, dse.TimeString(e.NextTime), dse.TimeString(e.Tim.Time),
			e.Trig.TagString(), e.Body)
	}
	fmt.Fprintln(w, "NOTE endqueue")
}

func (q *Queue) dumpQueueJSON(w io.Writer) {
	type jsonEntry struct {
		QID      string `json:"qid"`
		NextTime string `json:"nexttime"`
		TTime    string `json:"ttime"`
		Tags     string `json:"tags"`
		Body     string `json:"body"`
		File     string `json:"filename"`
		Line     int    `json:"lineno"`
	}
	var out []jsonEntry
	for _, e := range q.Entries {
		if e.NextTime == NoTime {
			continue
		}
		out = append(out, jsonEntry{
			QID:      e.QID,
			NextTime: dse.TimeString(e.NextTime),
			TTime:    dse.TimeString(e.Tim.Time),
			Tags:     e.Trig.TagString(),
			Body:     e.Body,
			File:     e.File,
			Line:     e.Line,
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return
	}
	if out == nil {
		b = []byte("[]")
	}
	fmt.Fprintf(w, "%s\n", b)
}

func writeJSONLine(w io.Writer, obj map[string]any) {
	b, err := json.Marshal(obj)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s\n", b)
}

// ReadCommands pumps newline-terminated protocol lines from r into a
// channel; the channel closes at EOF.
func ReadCommands(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
