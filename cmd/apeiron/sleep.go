package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/apeiron/memory"
)

func sleepCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "sleep",
		Short: "Consolidate the interaction log and project files into long-term memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail("loading config: %w", err)
			}
			if root != "" {
				cfg.ProjectRoot = root
			}

			rt, err := newApp(cfg)
			if err != nil {
				return fail("%w", err)
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return runSleep(ctx, rt)
		},
	}

	cmd.Flags().StringVarP(&root, "root", "r", "", "project directory to index (default: project_root)")
	return cmd
}

func runSleep(ctx context.Context, rt *app) error {
	c := memory.NewConsolidator(rt.durable, rt.log, memory.ConsolidatorConfig{
		Root:         rt.cfg.ProjectRoot,
		Filter:       rt.filter,
		MaxFileChars: rt.cfg.MaxFileChars,
	})

	fmt.Println("Entering sleep: consolidating memory...")
	slog.Info("sleep: consolidating", "log", rt.log.Path(), "root", rt.cfg.ProjectRoot, "store", rt.cfg.StoreDir)
	report, err := c.Run(ctx)
	fmt.Printf("Consolidated %d conversation entries and %d files in %s.\n",
		report.Episodes, report.Files, report.Duration.Round(time.Millisecond))
	if err != nil {
		return fail("consolidation incomplete: %w", err)
	}
	return nil
}
