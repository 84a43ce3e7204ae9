package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tracktag/internal/lifecycle"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/platformfactory"
	"github.com/srg/tracktag/internal/prompt"
	"github.com/srg/tracktag/internal/scancycle"
	"github.com/srg/tracktag/pkg/config"
)

// shutdownTimeout bounds manager teardown after the command is done.
const shutdownTimeout = 10 * time.Second

// runtimeEnv is what every platform-backed command needs.
type runtimeEnv struct {
	cfg      *config.Config
	logger   *logrus.Logger
	platform platform.Platform
}

// loadConfig reads --config and applies --simulate on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		cfg.Backend = config.BackendSim
	}
	return cfg, nil
}

// newRuntime loads the configuration, configures logging and creates the
// platform backend. Without --log-level or --verbose, a config file's
// log_level wins over fallback.
func newRuntime(cmd *cobra.Command, fallback logrus.Level) (*runtimeEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	var logger *logrus.Logger
	path, _ := cmd.Flags().GetString("config")
	if path != "" && !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("verbose") {
		logger = cfg.NewLogger()
	} else if logger, err = configureLogger(cmd, "verbose", fallback); err != nil {
		return nil, err
	}

	p, err := platformfactory.New(cfg, platformfactory.Options{
		Prompt: prompt.Stdio(),
		Status: cmd.ErrOrStderr(),
	}, logger)
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{cfg: cfg, logger: logger, platform: p}, nil
}

// newManager creates and starts a lifecycle manager on the environment's platform.
func (e *runtimeEnv) newManager(ctx context.Context, background bool, emitter lifecycle.Emitter) (*lifecycle.Manager, error) {
	mgr, err := lifecycle.New(lifecycle.Options{
		Background: background,
		Scan: scancycle.Options{
			Period:       e.cfg.Scan.Period,
			ResultBuffer: e.cfg.Scan.ResultBuffer,
		},
		Foreground:  e.cfg.Background.Config,
		HistorySize: e.cfg.Scan.HistorySize,
	}, e.platform, emitter, e.logger)
	if err != nil {
		return nil, err
	}
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}

// close tears down the manager, if any, and the platform.
func (e *runtimeEnv) close(mgr *lifecycle.Manager) {
	if mgr != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mgr.Close(ctx); err != nil {
			e.logger.WithError(err).Warn("Lifecycle manager did not close cleanly")
		}
	}
	if err := platformfactory.Close(e.platform); err != nil {
		e.logger.WithError(err).Warn("Platform backend did not close cleanly")
	}
}
