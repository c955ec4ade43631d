package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"chronicle/internal/config"
	"chronicle/internal/ingest"
	"chronicle/internal/pipeline"
	"chronicle/internal/stages"
	"chronicle/internal/store"
)

func newStageCommand(ctx *commandContext) *cobra.Command {
	stageCmd := &cobra.Command{
		Use:   "stage",
		Short: "Run and inspect pipeline stages",
	}

	stageCmd.AddCommand(newStageRunCommand(ctx))
	stageCmd.AddCommand(newStageFailedCommand(ctx))
	stageCmd.AddCommand(newStageResetCommand(ctx))
	stageCmd.AddCommand(newStageListCommand())

	return stageCmd
}

func newStageRunCommand(ctx *commandContext) *cobra.Command {
	var (
		batchID      int64
		limit        int
		resumeFailed bool
	)

	cmd := &cobra.Command{
		Use:   "run <stage>",
		Short: "Process currently eligible items for one stage, then exit",
		Args:  cobra.ExactArgs(1),
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
				worker := pipeline.NewWorker(coord, proc, logger, cfg)
				summary, err := worker.RunPass(cmd.Context(), pipeline.PassOptions{
					BatchID:      batchID,
					Limit:        limit,
					ResumeFailed: resumeFailed,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stage %s: %d processed, %d failed, %d skipped\n",
					stage, summary.Processed, summary.Failed, summary.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&batchID, "batch", 0, "Restrict the pass to one batch")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of items to process (0 = all eligible)")
	cmd.Flags().BoolVar(&resumeFailed, "resume-failed", false, "Reset failed items for this stage before the pass")
	return cmd
}

func newStageFailedCommand(ctx *commandContext) *cobra.Command {
	var batchID int64

	cmd := &cobra.Command{
		Use:   "failed <stage>",
		Short: "List items that failed a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage := args[0]
			return ctx.withCoordinator(func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error {
				items, err := coord.GetFailedItems(cmd.Context(), stage, batchID)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No failed items for stage %s\n", stage)
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					retries := ""
					message := ""
					completion, err := st.CompletionFor(cmd.Context(), item.ID, stage)
					if err != nil {
						return err
					}
					if completion != nil {
						retries = strconv.Itoa(completion.RetryCount)
						message = completion.ErrorMessage
					}
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						strconv.FormatInt(item.BatchID, 10),
						item.Label,
						retries,
						truncateCell(message, 72),
					})
				}
				table := renderTable(
					[]string{"Item", "Batch", "Label", "Retries", "Error"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&batchID, "batch", 0, "Restrict to one batch")
	return cmd
}

func newStageResetCommand(ctx *commandContext) *cobra.Command {
	var batchID int64

	cmd := &cobra.Command{
		Use:   "reset <stage>",
		Short: "Reset failed items for a stage back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage := args[0]
			return ctx.withCoordinator(func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error {
				count, err := coord.ResetFailedForRetry(cmd.Context(), stage, batchID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed items for stage %s\n", count, stage)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&batchID, "batch", 0, "Restrict to one batch")
	return cmd
}

func newStageListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the pipeline stages in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			graph := stages.Default()
			rows := make([][]string, 0)
			for i, stage := range graph.StageOrder() {
				prereqs, _ := graph.Prerequisites(stage)
				previous := "-"
				if len(prereqs) > 0 {
					previous = prereqs[len(prereqs)-1]
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), stage, previous})
			}
			table := renderTable(
				[]string{"#", "Stage", "After"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func truncateCell(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
