package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a bundle until idle and print the view tree",
	Long: `Create a runtime context for the bundle, run the application in one
root view, wait until the bridge, queues and UI batches are idle and print
the resulting view tree.

Example:
  bridgerun run --bundle app.js
  bridgerun run --config host.yaml --wait 30s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		wait, err := cmd.Flags().GetDuration("wait")
		if err != nil {
			return fmt.Errorf("failed to read 'wait' flag: %w", err)
		}
		if wait <= 0 {
			wait = cfg.Idle.Timeout.Std()
		}

		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		views, err := cmd.Flags().GetStringSlice("views")
		if err != nil {
			return fmt.Errorf("failed to read 'views' flag: %w", err)
		}
		h, err := newHost(ctx, cfg, log, views)
		if err != nil {
			return err
		}
		defer h.close()

		started := time.Now()
		if err := h.start(); err != nil {
			return err
		}
		c, err := h.waitIdle(ctx, wait)
		if err != nil {
			return err
		}
		log.Info("context idle",
			zap.String("context", c.ID()),
			zap.Int64("batches", c.UIManager.Applier().Applied()),
			zap.Duration("elapsed", time.Since(started)))

		tree, err := h.tree()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), tree)
		return nil
	},
}

func init() {
	runCmd.Flags().Duration("wait", 0, "idle wait limit (defaults to idle.timeout)")
}
