package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rem/internal/dse"
	"rem/internal/script"
)

var simpleLevel int

var simpleCmd = &cobra.Command{
	Use:   "simple FILE [DATE]",
	Short: "Emit simple-calendar records for a month",
	Long: `Run FILE for every day of the month containing DATE (default today) and
emit one record per triggered reminder. Level 1 is the legacy text form,
level 2 one JSON object per line, level 3 a single month JSON document.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine(args[1:])
		if err != nil {
			return err
		}
		switch simpleLevel {
		case 1:
			e.Mode = script.ModeSimple1
		case 2, 3:
			e.Mode = script.ModeSimple2
		default:
			return fmt.Errorf("invalid --level %d", simpleLevel)
		}
		e.NoQueue = true

		y, m, _ := dse.ToYMD(e.Today)
		first := dse.FromYMD(y, m, 1)
		days := dse.DaysInMonth(m, y)

		var buf bytes.Buffer
		if simpleLevel == 3 {
			e.Out = &buf
		}
		for d := 0; d < days; d++ {
			e.Today = first + d
			e.BeginIteration()
			if err := e.RunFile(args[0]); err != nil {
				return err
			}
		}
		if simpleLevel != 3 {
			return nil
		}
		return writeMonthDoc(os.Stdout, &buf, y, m, days, first, e)
	},
}

func init() {
	simpleCmd.Flags().IntVar(&simpleLevel, "level", 1, "output level: 1 text, 2 JSON lines, 3 month JSON document")
}

// writeMonthDoc wraps the per-line JSON entries into the level-3 month
// object, with prev/next month descriptors.
func writeMonthDoc(out *os.File, buf *bytes.Buffer, y, m, days, first int, e *script.Engine) error {
	var entries []json.RawMessage
	dec := json.NewDecoder(buf)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			break
		}
		entries = append(entries, raw)
	}
	if entries == nil {
		entries = []json.RawMessage{}
	}

	prevY, prevM := y, m-1
	if prevM < 0 {
		prevY, prevM = y-1, 11
	}
	nextY, nextM := y, m+1
	if nextM > 11 {
		nextY, nextM = y+1, 0
	}
	doc := []map[string]any{{
		"monthname":   dse.MonthName(m),
		"year":        y,
		"daysinmonth": days,
		"firstwkday":  dse.Weekday(first),
		"mondayfirst": 0,
		"prevmonth": map[string]any{
			"monthname": dse.MonthName(prevM), "year": prevY,
			"daysinmonth": dse.DaysInMonth(prevM, prevY),
		},
		"nextmonth": map[string]any{
			"monthname": dse.MonthName(nextM), "year": nextY,
			"daysinmonth": dse.DaysInMonth(nextM, nextY),
		},
		"translations": translationsMap(e),
		"entries":      entries,
	}}
	enc := json.NewEncoder(out)
	return enc.Encode(doc)
}

func translationsMap(e *script.Engine) map[string]string {
	out := map[string]string{}
	for _, p := range e.Trans.Pairs() {
		out[p[0]] = p[1]
	}
	return out
}
