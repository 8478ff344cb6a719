// cli.go holds the chainwork CLI entrypoint (Main), root command, and shared
// flags.
package chaincli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flagDB      string
	flagUser    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chainwork",
	Short: "Manage and run assistant prompt chains locally.",
	Long: `Chainwork stores assistant chain definitions, dispatches runs, and tracks
per-step results. Local mode needs no external services: state lives in
SQLite and jobs move over an in-process bus served by a built-in echo
worker. Point real workers at NATS for deployed setups.

  Quickstart:
    chainwork chain create -f chain.yaml
    chainwork model add mistral:instruct
    chainwork run <chain-id> --input topic=observability --wait
    chainwork status <execution-id>`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "path to the SQLite database (default .chainwork/chainwork.db)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "acting user id (default: local operator)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "log every tracked operation")

	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(runsCmd)
}

// effectiveConfig layers flags over file config over defaults.
func effectiveConfig() (localConfig, error) {
	fileCfg, err := loadLocalConfig()
	if err != nil {
		return localConfig{}, err
	}
	cfg, err := resolveConfig(fileCfg)
	if err != nil {
		return localConfig{}, err
	}
	if flagDB != "" {
		cfg.DB = flagDB
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	if flagVerbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// withEnv builds the local runtime, runs fn, and tears the runtime down.
func withEnv(cmd *cobra.Command, fn func(ctx context.Context, cfg localConfig, e *env) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := effectiveConfig()
	if err != nil {
		return err
	}
	e, err := buildEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	return fn(ctx, cfg, e)
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
