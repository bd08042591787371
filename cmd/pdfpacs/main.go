package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/pdfpacs/cmd/pdfpacs/commands"
)

var rootCmd = &cobra.Command{
	Use:   "pdfpacs",
	Short: "Ingest PDF reports into a PACS as DICOM Encapsulated PDF",
	Long: `pdfpacs scans a folder of PDF reports, derives patient and study identity
from each file name, skips studies the registry already holds, stores the
rest as DICOM Encapsulated PDF and files every source under Processados,
Duplicatas or Erros.

Examples:
  pdfpacs run                          # one pass over the source folder
  pdfpacs run --report last-run.yaml   # also write the summary as YAML
  pdfpacs watch                        # keep running as files arrive
  pdfpacs ping                         # check registry connectivity
  pdfpacs history --limit 5            # recent runs from the ledger`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (toml, yaml or json)")
	rootCmd.PersistentFlags().String("env", ".env", "Optional .env file loaded before the environment")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.PingCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
