package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"progress-sync-service/internal/logger"
	"progress-sync-service/internal/queue"
	"progress-sync-service/internal/sync"
)

func newDrainCommand(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay the offline queue once and exit",
		Long: `Replay every pending offline write once against the configured stores.

Entries that fail again count an attempt; entries at the retry bound are
dropped. With --force the pass runs even if the connectivity check reports
the device as offline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(ctx context.Context, m *sync.Manager) error {
				if force {
					m.Monitor().SetOnline(true)
				}
				report, err := m.Engine().Drain(ctx)
				if err != nil {
					if errors.Is(err, sync.ErrOffline) {
						return fmt.Errorf("%w (use --force to drain anyway)", err)
					}
					return err
				}
				return printDrain(cmd.OutOrStdout(), opts.Format, report)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "drain even when offline")
	return cmd
}

func newQueueCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List pending offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(ctx context.Context, m *sync.Manager) error {
				return printEntries(cmd.OutOrStdout(), opts.Format, m.Engine().PendingWrites())
			})
		},
	}
}

// withEngine builds a manager, restores its queue without starting the
// monitor or scheduler, and runs fn.
func withEngine(ctx context.Context, opts *rootOptions, fn func(ctx context.Context, m *sync.Manager) error) error {
	cfg, err := setup(opts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	m, err := sync.NewManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init sync manager: %w", err)
	}
	defer m.Close()

	if err := m.Engine().Restore(ctx); err != nil {
		return err
	}
	return fn(ctx, m)
}

func printEntries(w io.Writer, format string, entries []queue.Entry) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(entries)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OWNER\tENTRY\tENQUEUED\tATTEMPTS\tLAST SAVED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
			e.OwnerID, e.ID, e.EnqueuedAt.Format(time.RFC3339), e.Attempts, e.Record.LastSaved)
	}
	return tw.Flush()
}

func printDrain(w io.Writer, format string, report queue.DrainReport) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(report)
	}
	_, err := fmt.Fprintf(w, "succeeded: %d\nretrying: %d\ndropped: %d\n",
		len(report.Succeeded), len(report.Retrying), len(report.Dropped))
	return err
}
