// Package cli implements the ocrctl operator commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mercadoleve/mercadoleve/internal/ocr"
)

// Opener connects to the queue behind the given Redis address.
type Opener func(redisAddr string) (Backend, error)

type rootOptions struct {
	redisAddr  string
	jsonOutput bool
}

// NewRootCommand builds the ocrctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ocrctl",
		Short:         "Operate the OCR price ingestion queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultAddr := os.Getenv("REDIS_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:6379"
	}
	root.PersistentFlags().StringVar(&opts.redisAddr, "redis", defaultAddr, "Redis address used by the queue")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(newEnqueueCommand(opts, open), newQueueCommand(opts, open), newSweepCommand(opts, open))
	return root
}

func newEnqueueCommand(opts *rootOptions, open Opener) *cobra.Command {
	var (
		batchID       string
		supermarketID string
		images        []string
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue an uploaded batch for processing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := uuid.Parse(batchID); err != nil {
				return fmt.Errorf("--batch must be a uuid: %w", err)
			}
			if _, err := uuid.Parse(supermarketID); err != nil {
				return fmt.Errorf("--supermarket must be a uuid: %w", err)
			}
			req := ocr.ProcessRequest{BatchID: batchID, SupermarketID: supermarketID}
			for _, img := range images {
				if img = strings.TrimSpace(img); img != "" {
					req.ImageFiles = append(req.ImageFiles, ocr.ImageFile{Path: img})
				}
			}
			if len(req.ImageFiles) == 0 {
				return errors.New("at least one --image is required")
			}

			backend, err := open(opts.redisAddr)
			if err != nil {
				return err
			}
			defer backend.Close()

			task, err := backend.EnqueueProcessBatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued batch %s as task %s on %s\n", task.BatchID, task.TaskID, task.Queue)
			return nil
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "batch id")
	cmd.Flags().StringVar(&supermarketID, "supermarket", "", "supermarket id the prices belong to")
	cmd.Flags().StringArrayVar(&images, "image", nil, "image path inside the bucket (repeatable)")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("supermarket")
	return cmd
}

func newQueueCommand(opts *rootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show default queue statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := open(opts.redisAddr)
			if err != nil {
				return err
			}
			defer backend.Close()

			stats, err := backend.QueueStats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED\tPROCESSED\tFAILED")
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived, stats.Processed, stats.Failed)
			return tw.Flush()
		},
	}
}

func newSweepCommand(opts *rootOptions, open Opener) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail batches stuck in processing now instead of waiting for the cron",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxAge < time.Minute {
				return errors.New("--older-than must be at least 1m")
			}
			backend, err := open(opts.redisAddr)
			if err != nil {
				return err
			}
			defer backend.Close()

			id, err := backend.EnqueueSweep(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued sweep task %s\n", id)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "older-than", time.Hour, "fail batches processing for longer than this")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
