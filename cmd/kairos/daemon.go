package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kairoshq/kairos/internal/daemon"
	"github.com/kairoshq/kairos/internal/daemon/components"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start Kairos in background daemon mode",
	Long:  `Starts Kairos as a long-running service using component lifecycle orchestration. It exposes the coordination API and keeps presence fresh for live requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}

		storeComp := components.NewStoreComponent(&cfg.Store)
		adaptersComp := components.NewAdaptersComponent(&cfg.Adapters)
		coreComp := components.NewCoreComponent(cfg, storeComp, adaptersComp)
		schedulerComp := components.NewSchedulerComponent(cfg, storeComp, coreComp)
		apiComp := components.NewAPIComponent(cfg, storeComp, coreComp)

		daemonMgr.AddComponent(storeComp)
		daemonMgr.AddComponent(adaptersComp)
		daemonMgr.AddComponent(coreComp)
		daemonMgr.AddComponent(schedulerComp)
		daemonMgr.AddComponent(apiComp)

		slog.Info("Kairos daemon starting up...", "port", cfg.Server.Port)
		err = daemonMgr.Start(context.Background())
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Kairos daemon stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Kairos daemon stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
