package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/pdfpacs/pipeline"
)

// RunCmd processes the source folder once
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every PDF currently in the source folder",
	Long: `Run one pass over the source folder. Each PDF is parsed, validated,
checked for corruption and duplicates, uploaded and moved to its outcome
folder. Interrupting the command lets files already in progress finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		orch, closeLedger, err := pipeline.FromConfig(ctx, cfg, log)
		if err != nil {
			return withHints(err)
		}
		defer closeLedger()

		summary, err := orch.Run(ctx)
		if err != nil {
			return withHints(err)
		}

		printSummary(summary)

		if report, _ := cmd.Flags().GetString("report"); report != "" {
			if err := pipeline.WriteReport(report, summary); err != nil {
				return err
			}
			pterm.Info.Printfln("Report written to %s", report)
		}
		return nil
	},
}

func init() {
	RunCmd.Flags().StringP("report", "r", "", "Write the run summary to this YAML file")
}
