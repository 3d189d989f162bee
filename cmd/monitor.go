package cmd

import (
	"bytes"
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rem/internal/dse"
	"rem/internal/queue"
	"rem/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor FILE",
	Short: "Live agenda of today's timed reminders",
	Long:  "Show today's timed reminders in a terminal view that refreshes whenever FILE changes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		load := func() ([]tui.Item, error) {
			e, err := buildEngine(nil)
			if err != nil {
				return nil, err
			}
			// Discard printed output; the agenda only wants the queue.
			e.Out = &bytes.Buffer{}
			e.ErrOut = &bytes.Buffer{}
			e.BeginIteration()
			if err := e.RunFile(path); err != nil {
				return nil, err
			}
			items := make([]tui.Item, 0, len(e.Queued))
			for _, r := range e.Queued {
				body, err := e.Subst(r.Body, e.Today, r.Tim.Time)
				if err != nil {
					body = r.Body
				}
				items = append(items, tui.Item{Time: r.Tim.Time, Body: body})
			}
			return items, nil
		}

		watch := func(ctx context.Context) <-chan struct{} {
			w := queue.NewFileWatch(path, 0,
				time.Duration(viper.GetInt("poll_interval_min"))*time.Minute)
			return w.Changes(ctx)
		}

		model := tui.NewModel("rem · "+path+" · "+dse.String(dse.FromTime(Now())), load, watch)
		_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
		return err
	},
}
