package cmd

import (
	"github.com/spf13/cobra"

	"rem/internal/script"
)

var nextCmd = &cobra.Command{
	Use:   "next FILE [DATE]",
	Short: "List each reminder's next trigger date",
	Long:  "Print one `YYYY/MM/DD body` line per reminder, giving the next date on or after DATE (default today) on which it triggers.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine(args[1:])
		if err != nil {
			return err
		}
		e.Mode = script.ModeNext
		e.NoQueue = true
		e.BeginIteration()
		return e.RunFile(args[0])
	},
}
