package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/pdfpacs/pipeline"
)

// WatchCmd keeps processing the source folder as files arrive
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process the source folder now and again whenever PDFs arrive",
	Long: `Run once, then watch the source folder and start a new run shortly
after new PDFs appear. SIGINT or SIGTERM stop the watcher once the current
files are finished.`,
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

		w := pipeline.NewWatcher(orch, cfg.Source.Folder, pipeline.WatcherOptions{
			Debounce: cfg.Pipeline.WatchDebounce,
			Rescan:   cfg.Pipeline.RescanInterval,
			Logger:   log,
			OnRun: func(s *pipeline.Summary) {
				if s.Total() > 0 {
					printSummary(s)
				}
			},
		})

		pterm.Info.Printfln("Watching %s (Ctrl+C to stop)", cfg.Source.Folder)
		if err := w.Run(ctx); err != nil {
			return withHints(err)
		}
		pterm.Info.Println("Stopped")
		return nil
	},
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
