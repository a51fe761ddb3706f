package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelscout/internal/history"
	"reelscout/internal/media"
	"reelscout/internal/runner"
)

var (
	flagHistoryLimit int
	flagHistoryTrim  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent resolution runs",
	RunE:  historyRun,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "Show at most this many runs")
	historyCmd.Flags().IntVar(&flagHistoryTrim, "trim", -1, "Keep only the newest N runs")
}

func historyRun(cmd *cobra.Command, args []string) error {
	if flagHistoryTrim >= 0 {
		if err := history.Trim(flagHistoryTrim); err != nil {
			return fmt.Errorf("trimming history: %w", err)
		}
	}

	entries, err := history.Load()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if flagHistoryLimit > 0 && len(entries) > flagHistoryLimit {
		entries = entries[len(entries)-flagHistoryLimit:]
	}

	if !flagTable {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No history entries found.")
		return nil
	}
	for _, line := range history.FormatForDisplay(entries) {
		fmt.Println(line)
	}
	return nil
}

// recordRun appends a run to the history file when history is enabled.
func recordRun(q media.Query, res *runner.RunResult, err error) {
	if !cfg.History {
		return
	}
	if herr := history.Append(history.FromRun(q, res, err)); herr != nil {
		logger.WithError(herr).Warn("recording run history")
	}
}
