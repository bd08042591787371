package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/ledger"
)

// HistoryCmd lists recent runs from the ledger
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs recorded in the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if !cfg.Ledger.Enabled {
			return errors.WithHint(errors.New("ledger is disabled"), "set ledger.enabled = true")
		}

		l, err := ledger.Open(cmd.Context(), cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer l.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := l.RecentRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			pterm.Info.Println("No runs recorded yet")
			return nil
		}

		printHistory(runs)
		return nil
	},
}

func init() {
	HistoryCmd.Flags().IntP("limit", "n", 10, "Number of runs to show")
}
