package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chronicle/internal/config"
	"chronicle/internal/ingest"
	"chronicle/internal/pipeline"
	"chronicle/internal/store"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Create and inspect ingestion batches",
	}

	batchCmd.AddCommand(newBatchCreateCommand(ctx))
	batchCmd.AddCommand(newBatchAddCommand(ctx))
	batchCmd.AddCommand(newBatchLinkCommand(ctx))
	batchCmd.AddCommand(newBatchStatusCommand(ctx))
	batchCmd.AddCommand(newBatchListCommand(ctx))

	return batchCmd
}

func newBatchCreateCommand(ctx *commandContext) *cobra.Command {
	var metaPairs []string

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCoordinator(func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error {
				name := ""
				if len(args) > 0 {
					name = args[0]
				}
				metadata, err := parseMetadata(metaPairs)
				if err != nil {
					return err
				}
				batch, err := coord.CreateBatch(cmd.Context(), name, metadata)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created batch %d (%s)\n", batch.ID, batch.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&metaPairs, "meta", nil, "Batch metadata as key=value (repeatable)")
	return cmd
}

func newBatchAddCommand(ctx *commandContext) *cobra.Command {
	var (
		label          string
		itemType       string
		source         string
		conversationID string
		messageID      string
		timestamp      string
		textFlag       string
		fileFlag       string
	)

	cmd := &cobra.Command{
		Use:   "add <batch-id>",
		Short: "Add a conversation chunk to a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0])
			if err != nil {
				return err
			}
			text := textFlag
			if fileFlag != "" {
				data, err := os.ReadFile(fileFlag)
				if err != nil {
					return fmt.Errorf("read chunk file: %w", err)
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("chunk text is required; pass --text or --file")
			}

			return ctx.withCoordinator(func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error {
				if source == "" {
					source = cfg.Ingest.DefaultSource
				}
				if label == "" {
					label = fmt.Sprintf("chunk-%d", time.Now().Unix())
				}
				producer := ingest.NewProducer(coord, st)
				item, err := producer.AddChunk(cmd.Context(), batchID, ingest.Chunk{
					Label:                label,
					ItemType:             itemType,
					Source:               source,
					SourceConversationID: conversationID,
					SourceMessageID:      messageID,
					OriginalTimestamp:    timestamp,
					Text:                 text,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added work item %d (%s)\n", item.ID, item.Label)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Human-readable item label")
	cmd.Flags().StringVar(&itemType, "type", "chunk", "Item type tag")
	cmd.Flags().StringVar(&source, "source", "", "Provenance source tag")
	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "Originating conversation identifier")
	cmd.Flags().StringVar(&messageID, "message-id", "", "Originating message identifier")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Original timestamp of the chunk")
	cmd.Flags().StringVar(&textFlag, "text", "", "Raw chunk text")
	cmd.Flags().StringVar(&fileFlag, "file", "", "Read raw chunk text from a file")
	return cmd
}

func newBatchLinkCommand(ctx *commandContext) *cobra.Command {
	var (
		edgeType string
		note     string
	)

	cmd := &cobra.Command{
		Use:   "link <batch-id> <source-item> <target-item>",
		Short: "Add a relationship edge between two work items",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0])
			if err != nil {
				return err
			}
			sourceID, err := parseID(args[1])
			if err != nil {
				return err
			}
			targetID, err := parseID(args[2])
			if err != nil {
				return err
			}
			return ctx.withCoordinator(func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error {
				edge, err := coord.AddEdge(cmd.Context(), batchID, pipeline.EdgeDraft{
					SourceItemID: sourceID,
					TargetItemID: targetID,
					EdgeType:     edgeType,
					Note:         note,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added edge %d (%d -> %d, %s)\n", edge.ID, edge.SourceItemID, edge.TargetItemID, edge.EdgeType)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&edgeType, "type", "follows", "Edge type tag")
	cmd.Flags().StringVar(&note, "note", "", "Provenance note")
	return cmd
}

func newBatchStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show per-stage completion counts for a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withCoordinator(func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error {
				report, err := coord.BatchStatus(cmd.Context(), batchID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Batch %d (%s): %s, %d items, %d processed, %d failed\n",
					report.Batch.ID, report.Batch.Name, report.Batch.Status,
					report.Batch.TotalItems, report.Batch.ProcessedItems, report.Batch.FailedItems)

				rows := make([][]string, 0, len(report.Stages))
				for _, stage := range report.Stages {
					rows = append(rows, []string{
						stage.Stage,
						strconv.Itoa(stage.Completed),
						strconv.Itoa(stage.Failed),
						strconv.Itoa(stage.Processing),
						strconv.Itoa(stage.Pending),
					})
				}
				table := renderTable(
					[]string{"Stage", "Completed", "Failed", "Processing", "Pending"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCoordinator(func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error {
				batches, err := st.ListBatches(cmd.Context())
				if err != nil {
					return err
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches")
					return nil
				}
				rows := make([][]string, 0, len(batches))
				for _, batch := range batches {
					rows = append(rows, []string{
						strconv.FormatInt(batch.ID, 10),
						batch.Name,
						string(batch.Status),
						strconv.Itoa(batch.TotalItems),
						strconv.Itoa(batch.ProcessedItems),
						strconv.Itoa(batch.FailedItems),
						batch.CreatedAt.Format(time.RFC3339),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Status", "Items", "Processed", "Failed", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid identifier %q", raw)
	}
	return id, nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid metadata %q; expected key=value", pair)
		}
		metadata[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return metadata, nil
}
