package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/apeiron/memory"
)

func recallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recall <query>",
		Short: "Search long-term memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail("loading config: %w", err)
			}
			rt, err := newApp(cfg)
			if err != nil {
				return fail("%w", err)
			}
			defer rt.Close()

			r := rt.recaller()
			recs, err := r.Recall(context.Background(), strings.Join(args, " "))
			if err != nil {
				return fail("recall: %w", err)
			}
			if len(recs) == 0 {
				fmt.Println("Nothing recalled. Run `apeiron sleep` to consolidate memory first.")
				return nil
			}
			fmt.Print(memory.FormatRecollections(recs, r.MaxSnippetChars()))
			return nil
		},
	}
}
