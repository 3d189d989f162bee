package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rem/internal/queue"
	"rem/internal/script"
	"rem/internal/trigger"
	"rem/internal/value"
)

var (
	serveDaemon int
	serveJSON   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve FILE",
	Short: "Run the timed-reminder daemon",
	Long: `Process FILE for today, queue its timed reminders and keep firing them
at their scheduled minutes. Without --daemon the process speaks the
line-based control protocol on stdin/stdout (STATUS, QUEUE, JSONQUEUE,
DEL <qid>, REREAD, TRANSLATE, EXIT). The file is re-read when it changes
on disk and when the date rolls over.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		watch := queue.NewFileWatch(path, 0,
			time.Duration(viper.GetInt("poll_interval_min"))*time.Minute)
		changed := watch.Changes(ctx)

		var commands <-chan string
		if serveDaemon <= 0 {
			commands = queue.ReadCommands(os.Stdin)
		}

		for {
			e, err := buildEngine(nil)
			if err != nil {
				return err
			}
			e.NoTimed = true   // the queue does the firing
			e.Out = io.Discard // keep stdout clean for the protocol
			e.BeginIteration()
			if err := e.RunFile(path); err != nil {
				return err
			}
			q := buildQueue(e)
			reason := q.Serve(queue.ServeOpts{
				Daemon:   serveDaemon,
				Commands: commands,
				Changed:  changed,
			})
			switch reason {
			case queue.StopExit:
				return nil
			case queue.StopEmpty:
				if serveDaemon <= 0 && commands == nil {
					return nil
				}
			}
			// Rollover or reread: rebuild from the file and keep serving.
		}
	},
}

func init() {
	serveCmd.Flags().IntVarP(&serveDaemon, "daemon", "z", 0, "wake every N minutes instead of speaking the stdin protocol")
	serveCmd.Flags().BoolVar(&serveJSON, "json", false, "respond in JSON")
}

// buildQueue copies the engine's collected timed reminders into a queue
// wired back to the engine for substitution, sched() and TRANSLATE.
func buildQueue(e *script.Engine) *queue.Queue {
	q := queue.New(os.Stdout, os.Stderr)
	q.JSONMode = serveJSON
	q.TestMode = e.TestMode
	q.MaxLate = int(e.Sys.Int("MaxLateMinutes"))
	q.Now = Now
	q.Hooks = queue.Hooks{
		Subst: func(body string, t *trigger.Trigger, date, min int) (string, error) {
			return e.Subst(body, date, min)
		},
		CallSched: func(name string, run int) (value.Value, error) {
			return e.CallSched(name, run)
		},
		RunCmd:       e.RunShellCommand,
		Translate:    func(s string) (string, bool) { return e.Trans.LookupCased(s) },
		TranslateAll: func() [][2]string { return e.Trans.Pairs() },
	}
	for _, r := range e.Queued {
		q.Add(r.Trig, r.Tim, r.Body, r.File, r.Line)
	}
	return q
}

// queueServeOpts builds drain-mode options with an optional command source.
func queueServeOpts(path string, daemon int, commands <-chan string) queue.ServeOpts {
	ctx := context.Background()
	watch := queue.NewFileWatch(path, 0, time.Minute)
	return queue.ServeOpts{
		Daemon:   daemon,
		Commands: commands,
		Changed:  watch.Changes(ctx),
	}
}
