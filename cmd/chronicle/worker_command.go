package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chronicle/internal/config"
	"chronicle/internal/ingest"
	"chronicle/internal/pipeline"
	"chronicle/internal/store"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker <stage>",
		Short: "Run a continuous worker for one stage",
		Long: `Run a worker that repeatedly waits for eligible items on the given
stage and processes them until interrupted. Only one worker per stage may
run on a host at a time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage := args[0]
			proc, err := ingest.ProcessorFor(stage)
			if err != nil {
				return err
			}
			return ctx.withCoordinator(func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error {
				lock := pipeline.NewStageLock(cfg, stage)
				if err := lock.Acquire(); err != nil {
					return err
				}
				defer lock.Release()

				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				fmt.Fprintf(cmd.OutOrStdout(), "Worker for stage %s started (lock %s)\n", stage, lock.Path())
				worker := pipeline.NewWorker(coord, proc, logger, cfg)
				return worker.Run(runCtx)
			})
		},
	}
}
