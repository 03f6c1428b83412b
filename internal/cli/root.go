// Package cli implements the coopa-sync command, which drives the offline
// cache and sync queue from a terminal.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/coopa/backend/internal/config"
	"github.com/coopa/backend/internal/offline"
	"github.com/spf13/cobra"
)

type options struct {
	storePath string
	baseURL   string
	token     string
	strategy  string
	cfg       *config.SyncConfig
}

// NewRootCmd builds the command tree with flags defaulting to the
// SYNC_* environment.
func NewRootCmd() *cobra.Command {
	opts := &options{cfg: config.LoadSyncConfig()}

	root := &cobra.Command{
		Use:   "coopa-sync",
		Short: "Offline cache and sync queue for the Coopa API",
		Long: `coopa-sync keeps write requests made while offline in a local SQLite queue
and replays them against the Coopa API once it is reachable again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.storePath, "store", opts.cfg.StorePath, "Path to the local SQLite store")
	flags.StringVar(&opts.baseURL, "base-url", opts.cfg.BaseURL, "API base URL")
	flags.StringVar(&opts.token, "token", opts.cfg.Token, "Bearer token for replayed requests")
	flags.StringVar(&opts.strategy, "strategy", string(opts.cfg.Strategy), "Conflict strategy: server-wins, merge or user-choice")

	root.AddCommand(
		newEnqueueCmd(opts),
		newProcessCmd(opts),
		newStatusCmd(opts),
		newRetryCmd(opts),
		newPurgeCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// Execute runs the root command
func Execute(version string) error {
	root := NewRootCmd()
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (o *options) syncConfig() (*config.SyncConfig, error) {
	cfg := *o.cfg
	cfg.StorePath = o.storePath
	cfg.BaseURL = o.baseURL
	cfg.Token = o.token
	cfg.Strategy = config.ConflictStrategy(o.strategy)

	switch cfg.Strategy {
	case config.ServerWins, config.Merge, config.UserChoice:
	default:
		return nil, fmt.Errorf("unknown conflict strategy %q", o.strategy)
	}
	return &cfg, nil
}

func (o *options) openStore() (*offline.Store, error) {
	store, err := offline.OpenStore(o.storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", o.storePath, err)
	}
	return store, nil
}

type syncer struct {
	cfg       *config.SyncConfig
	store     *offline.Store
	replayer  *offline.HTTPReplayer
	processor *offline.Processor
}

// syncer wires a store, replayer and processor from the current flags.
func (o *options) syncer() (*syncer, error) {
	cfg, err := o.syncConfig()
	if err != nil {
		return nil, err
	}
	store, err := o.openStore()
	if err != nil {
		return nil, err
	}
	replayer := offline.NewHTTPReplayer(cfg.BaseURL, cfg.Token, probeTimeout(cfg))
	return &syncer{
		cfg:       cfg,
		store:     store,
		replayer:  replayer,
		processor: offline.NewProcessor(store, replayer, cfg),
	}, nil
}

func (s *syncer) manager() *offline.Manager {
	return offline.NewManager(s.store, s.processor, s.replayer, s.cfg.CheckInterval)
}

func probeTimeout(cfg *config.SyncConfig) time.Duration {
	if cfg.ProbeTimeout <= 0 {
		return 5 * time.Second
	}
	return cfg.ProbeTimeout
}
