package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"webmill/internal/deps"
	"webmill/internal/jobs"
	"webmill/internal/logging"
	"webmill/internal/server"
	"webmill/internal/workflow"
)

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.buildLogger()
			if err != nil {
				return err
			}

			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				if status.Available {
					continue
				}
				if status.Optional {
					logger.Warn("optional dependency missing",
						logging.String("name", status.Name),
						logging.String("detail", status.Detail))
					continue
				}
				return fmt.Errorf("missing dependency %s: %s", status.Name, status.Detail)
			}

			lockPath := filepath.Join(cfg.Paths.StateDir, "webmill.lock")
			fileLock := flock.New(lockPath)
			locked, err := fileLock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock %s: %w", lockPath, err)
			}
			if !locked {
				return fmt.Errorf("another webmill instance holds %s", lockPath)
			}
			defer func() { _ = fileLock.Unlock() }()

			store, err := jobs.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			orchestrator := workflow.New(cfg, store, logger)
			srv := server.New(cfg, store, orchestrator, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("shutting down", logging.String("component", "serve"))
			srv.Stop()
			// Let in-flight conversions reach a terminal status before the
			// store closes.
			orchestrator.Wait()
			return nil
		},
	}
}
