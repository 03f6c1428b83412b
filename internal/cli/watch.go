package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/coopa/backend/internal/offline"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing while connectivity comes and goes",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.syncer()
			if err != nil {
				return err
			}
			defer s.store.Close()
			m := s.manager()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			unsubscribe := m.Subscribe(func(st offline.Status) {
				fmt.Fprintf(out, "%s online=%t syncing=%t pending=%d%s\n",
					time.Now().Format(time.TimeOnly), st.Online, st.Syncing, st.QueueLength, syncErrorSuffix(st))
			})
			defer unsubscribe()

			m.Run(ctx)
			return nil
		},
	}
}

func syncErrorSuffix(s offline.Status) string {
	if s.SyncError == "" {
		return ""
	}
	return " error=" + s.SyncError
}
