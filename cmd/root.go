package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatlabs-hq/agency-ops/internal/config"
	"github.com/chatlabs-hq/agency-ops/internal/db"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "agency-ops",
	Short: "Agency operations backend",
	Long:  "Staff scheduling, earnings ingestion and bonus accounting for chat agencies. Evaluates threshold bonus rules per worker and window with exactly-once awards.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// storePool creates the shared connection pool from config.
func storePool(ctx context.Context) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
