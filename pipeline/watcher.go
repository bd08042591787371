package pipeline

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/logger"
)

// DefaultDebounce is the quiet period after the last change before a run
const DefaultDebounce = 2 * time.Second

// Runner is what the watcher triggers; *Orchestrator implements it
type Runner interface {
	Run(ctx context.Context) (*Summary, error)
}

// WatcherOptions configures a Watcher
type WatcherOptions struct {
	Debounce time.Duration
	// Rescan, when positive, triggers a run at this interval even without
	// events
	Rescan time.Duration
	// OnRun receives every completed run
	OnRun  func(*Summary)
	Logger *zap.SugaredLogger
}

// Watcher re-runs the pipeline when candidate files appear in a folder.
// Runs happen on the watcher's own goroutine and never overlap.
type Watcher struct {
	runner Runner
	folder string
	opts   WatcherOptions
	logger *zap.SugaredLogger
}

// NewWatcher returns a watcher for folder
func NewWatcher(runner Runner, folder string, opts WatcherOptions) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Watcher{
		runner: runner,
		folder: folder,
		opts:   opts,
		logger: opts.Logger.Named("watch"),
	}
}

// Run does one pass, then watches until ctx is done. A run in progress
// when ctx is cancelled finishes its in-flight files before Run returns.
// Startup faults of later runs are logged and retried on the next trigger.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create fsnotify watcher")
	}
	defer fsw.Close()

	if err := fsw.Add(w.folder); err != nil {
		return errors.Wrapf(err, "watch %s", w.folder)
	}

	if err := w.runOnce(ctx); err != nil {
		return err
	}

	debounce := time.NewTimer(w.opts.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	var rescan <-chan time.Time
	if w.opts.Rescan > 0 {
		ticker := time.NewTicker(w.opts.Rescan)
		defer ticker.Stop()
		rescan = ticker.C
	}

	w.logger.Infow("Watching for new documents", "folder", w.folder, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debugw("Change detected", logger.FieldFile, event.Name, "op", event.Op.String())
			debounce.Reset(w.opts.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("Watcher error", logger.FieldError, err)

		case <-debounce.C:
			w.trigger(ctx)

		case <-rescan:
			w.trigger(ctx)
		}
	}
}

func (w *Watcher) trigger(ctx context.Context) {
	if err := w.runOnce(ctx); err != nil {
		w.logger.Errorw("Run failed to start", logger.FieldError, err)
	}
}

func (w *Watcher) runOnce(ctx context.Context) error {
	summary, err := w.runner.Run(ctx)
	if err != nil {
		return err
	}
	if w.opts.OnRun != nil {
		w.opts.OnRun(summary)
	}
	return nil
}

// relevant keeps creates and writes of candidate files. Files moved away
// by a run show up as renames and are ignored.
func relevant(event fsnotify.Event) bool {
	if !IsCandidate(event.Name) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}
