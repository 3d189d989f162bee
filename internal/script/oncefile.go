package script

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"rem/internal/dse"
)

// ReadOnceFile returns the date serial recorded in the once-per-day
// timestamp file. A missing or unparseable file reads as 0, so partially
// written files are tolerated.
func ReadOnceFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	first, _, _ := strings.Cut(string(data), "\n")
	n, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// WriteOnceFile truncates and rewrites the timestamp file with the given
// serial plus a human-readable comment.
func WriteOnceFile(path string, serial int) error {
	body := fmt.Sprintf("%d\nTimestamp for ONCE reminders; last run on %s.\n",
		serial, dse.String(serial))
	return os.WriteFile(path, []byte(body), 0o644)
}

// checkOnce lazily loads the once file named by $OnceFile the first time a
// ONCE reminder is seen, marks the engine when today already fired, and
// rewrites the file with today's serial.
func (e *Engine) checkOnce() {
	if e.onceChecked {
		return
	}
	e.onceChecked = true
	path := e.Sys.Str("OnceFile")
	if path == "" {
		return
	}
	if ReadOnceFile(path) == e.Today {
		e.OnceToday = true
		return
	}
	if err := WriteOnceFile(path, e.Today); err != nil {
		e.warn(fmt.Sprintf("can't update once file %s: %v", path, err))
	}
}
