package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coopa/backend/internal/offline"
	"github.com/spf13/cobra"
)

func newEnqueueCmd(opts *options) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "enqueue [method] [url]",
		Short: "Queue a request for replay",
		Example: `  coopa-sync enqueue POST /requests --data '{"itemName":"Rice","quantity":10}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data must be valid JSON")
				}
				body = json.RawMessage(data)
			}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.Enqueue(cmd.Context(), args[0], args[1], body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued item %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON request body")
	return cmd
}

func newProcessCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Replay due queue items once",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.syncer()
			if err != nil {
				return err
			}
			defer s.store.Close()

			ctx := cmd.Context()
			if !s.replayer.Probe(ctx) {
				fmt.Fprintf(cmd.OutOrStdout(), "Server unreachable at %s, queue left untouched\n", s.cfg.BaseURL)
				return nil
			}
			result, err := s.processor.ProcessQueue(ctx)
			if err != nil {
				return err
			}
			if _, err := s.store.ClearExpired(ctx); err != nil {
				return err
			}
			pending, err := s.store.QueueLength(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d, retried %d, failed %d, conflicts %d; %d pending\n",
				result.Synced, result.Retried, result.Failed, result.Conflicts, pending)
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List queued items",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.ListQueue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Sync queue is empty.")
				return nil
			}

			now := time.Now()
			fmt.Fprintf(out, "Sync queue (%d):\n\n", len(items))
			for _, it := range items {
				fmt.Fprintf(out, "  %-4d %-7s %-8s %-36s retries=%d  queued %s\n",
					it.ID, it.Method, it.Status, it.URL, it.Retries, offline.TimeAgoText(it.CreatedAt, now))
				if it.LastError != "" {
					fmt.Fprintf(out, "       last error: %s\n", it.LastError)
				}
				printConflict(cmd, it)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	return cmd
}

// printConflict shows the diverging fields of an item parked for manual
// resolution.
func printConflict(cmd *cobra.Command, it offline.QueueItem) {
	if it.Conflict == nil || it.Status != offline.StatusFailed {
		return
	}
	var local, remote map[string]any
	if json.Unmarshal(it.Conflict.Local, &local) != nil || json.Unmarshal(it.Conflict.Remote, &remote) != nil {
		return
	}
	report := offline.NewConflictReport(local, remote)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "       %s\n", report.Title)
	for _, c := range report.Conflicts {
		fmt.Fprintf(out, "         %s: local=%v remote=%v\n", c.Field, c.Local, c.Remote)
	}
}

func newRetryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id]",
		Short: "Move a failed item back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Retry(cmd.Context(), id); err != nil {
				if errors.Is(err, offline.ErrNotFound) {
					return fmt.Errorf("no sync item %d", id)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Item %d queued for retry\n", id)
			return nil
		},
	}
}

func newPurgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete failed items and expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			failed, err := store.PurgeFailed(cmd.Context())
			if err != nil {
				return err
			}
			expired, err := store.ClearExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d failed items and %d expired cache entries\n", failed, expired)
			return nil
		},
	}
}
