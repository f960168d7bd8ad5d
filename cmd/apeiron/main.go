package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/apeiron/config"
)

var (
	cfgPath string
	offline bool
	verbose bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "apeiron",
		Short: "Conversational agent with live project memory and long-term recall",
		Long: `Apeiron keeps two memories for a conversational agent: a live index of the
project you point it at, and a durable index consolidated from past
conversations and the project tree.

Examples:
  apeiron wake                   # interactive session
  apeiron wake --watch ./src     # start watching a directory
  apeiron sleep                  # consolidate the log and project into long-term memory
  apeiron recall "database"      # search long-term memory`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().BoolVar(&offline, "offline", false, "use the local hashing embedder instead of Ollama")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(wakeCmd())
	root.AddCommand(sleepCmd())
	root.AddCommand(recallCmd())
	return root
}

// loadConfig reads .env, the config file and the environment, then installs
// the default logger.
func loadConfig() (*config.Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})))
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fail(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}
