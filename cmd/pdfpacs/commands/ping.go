package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/pdfpacs/pipeline"
)

// PingCmd checks that the registry answers
var PingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check registry connectivity",
	Long:  `Call GET /system on Orthanc, or send a C-ECHO when registry.protocol is dimse.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		registry, err := pipeline.NewRegistry(cfg.Registry, cfg.Pipeline.Workers, log)
		if err != nil {
			return withHints(err)
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		started := time.Now()
		desc, err := registry.Ping(ctx)
		if err != nil {
			pterm.Error.Printfln("Registry unreachable: %v", err)
			return err
		}
		pterm.Success.Printfln("%s answered in %s", desc, time.Since(started).Round(time.Millisecond))
		return nil
	},
}
