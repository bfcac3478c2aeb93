package cmd

import (
	"fmt"

	"github.com/example/deutschbot/internal/app"
	"github.com/example/deutschbot/internal/config"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deutschbot",
	Short: "Telegram bot teaching German to Uzbek speakers",
	Long:  "deutschbot runs a daily six-step German lesson over Telegram and sends the word of the day to subscribers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overrides CONFIG_FILE env var)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(learnerCmd)
}

// openApp loads configuration, builds the logger and wires the app.
// Config warnings are logged, not fatal.
func openApp(cmd *cobra.Command) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, warnings, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	for _, w := range warnings {
		log.Warn("config", "warning", w)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}
