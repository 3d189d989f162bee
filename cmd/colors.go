package cmd

// Subtle ANSI color variables for consistent, shared styling across commands.
// These are intentionally variables (not constants) so callers can disable or
// re-enable coloring at runtime (e.g. when output is redirected or for tests).
//
// Note: values use standard ANSI SGR sequences supported by most terminal
// emulators.

var (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"

	ansiBanner  = "\x1b[1;37m" // bright white bold for the banner line
	ansiTimed   = "\x1b[2;36m" // dim cyan for queued/timed entries
	ansiWarn    = "\x1b[33m"   // yellow for warnings
	ansiError   = "\x1b[31m"   // red for errors
	ansiOverdue = "\x1b[2;31m" // dim red for overdue markers
)

var (
	defaultAnsiReset   = ansiReset
	defaultAnsiBold    = ansiBold
	defaultAnsiDim     = ansiDim
	defaultAnsiBanner  = ansiBanner
	defaultAnsiTimed   = ansiTimed
	defaultAnsiWarn    = ansiWarn
	defaultAnsiError   = ansiError
	defaultAnsiOverdue = ansiOverdue
)

// DisableColors turns off ANSI sequences by setting all color vars to empty
// strings. Useful for non-TTY output or deterministic test output.
func DisableColors() {
	ansiReset = ""
	ansiBold = ""
	ansiDim = ""
	ansiBanner = ""
	ansiTimed = ""
	ansiWarn = ""
	ansiError = ""
	ansiOverdue = ""
}

// EnableColors restores the palette to the package defaults.
func EnableColors() {
	ansiReset = defaultAnsiReset
	ansiBold = defaultAnsiBold
	ansiDim = defaultAnsiDim
	ansiBanner = defaultAnsiBanner
	ansiTimed = defaultAnsiTimed
	ansiWarn = defaultAnsiWarn
	ansiError = defaultAnsiError
	ansiOverdue = defaultAnsiOverdue
}
