package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rem/internal/script"
)

var runQueueFlag bool

var runCmd = &cobra.Command{
	Use:   "run FILE [DATE] [TIME] [*REPEAT]",
	Short: "Run a reminder file and print what triggers",
	Long: `Process FILE for DATE (default today), printing each triggered reminder.
A trailing *N repeats the run over N consecutive days. With --queue the
process stays in the foreground and fires today's timed reminders at their
scheduled minutes.`,
	Args: cobra.RangeArgs(1, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		repeat := 1
		rest := args[1:]
		if n := len(rest); n > 0 && strings.HasPrefix(rest[n-1], "*") {
			r, err := strconv.Atoi(rest[n-1][1:])
			if err != nil || r < 1 {
				return fmt.Errorf("invalid repeat: %s", rest[n-1])
			}
			repeat = r
			rest = rest[:n-1]
		}
		e, err := buildEngine(rest)
		if err != nil {
			return err
		}

		for day := 0; day < repeat; day++ {
			e.BeginIteration()
			if err := e.RunFile(args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "%s%v%s\n", ansiError, err, ansiReset)
				os.Exit(1)
			}
			e.Today++
		}
		e.Today -= repeat

		if e.ExitCode() != 0 {
			os.Exit(e.ExitCode())
		}
		if len(e.Queued) > 0 {
			if runQueueFlag {
				return drainQueue(e, args[0])
			}
			fmt.Fprintf(os.Stderr, "%s%d timed reminder(s) queued for today; use --queue or `rem serve` to fire them%s\n",
				ansiTimed, len(e.Queued), ansiReset)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&noQueue, "noqueue", "q", false, "don't queue timed reminders")
	runCmd.Flags().BoolVarP(&noTimed, "noat", "a", false, "queue timed reminders without printing them now")
	runCmd.Flags().BoolVar(&fileInfo, "fileinfo", false, "print a # fileinfo line before each reminder")
	runCmd.Flags().BoolVar(&runQueueFlag, "queue", false, "stay in the foreground and fire timed reminders")
}

// drainQueue runs today's timed reminders to completion (the drain-once
// alternative to full server mode).
func drainQueue(e *script.Engine, path string) error {
	q := buildQueue(e)
	q.Serve(queueServeOpts(path, 0, nil))
	return nil
}
