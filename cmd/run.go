package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot and, when elected leader, the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd)
	},
}

// runBot serves until SIGINT or SIGTERM
func runBot(cmd *cobra.Command) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Log.Info("starting deutschbot")
	if err := a.Run(ctx); err != nil {
		a.Log.Error("bot stopped with error", "error", err)
		return err
	}
	a.Log.Info("shutdown complete")
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
