// Package commands holds the pdfpacs subcommands.
package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caio-sobreiro/pdfpacs/config"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/logger"
)

// setup loads the configuration named by the persistent flags and builds
// the logger. cleanup flushes the logger.
func setup(cmd *cobra.Command) (cfg config.Config, log *zap.SugaredLogger, cleanup func(), err error) {
	file, _ := cmd.Flags().GetString("config")
	dotenv, _ := cmd.Flags().GetString("env")

	cfg, err = config.Load(config.Options{File: file, DotEnv: dotenv})
	if err != nil {
		return cfg, nil, nil, withHints(err)
	}

	log, cleanup, err = logger.New(logger.Options{
		JSON:  cfg.Log.JSON,
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	})
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, log, cleanup, nil
}

// withHints appends the hints of err to its message for terminal output
func withHints(err error) error {
	if hints := errors.FlattenHints(err); hints != "" {
		return errors.Newf("%v\nhint: %s", err, hints)
	}
	return err
}
