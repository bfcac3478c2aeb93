package cmd

import (
	"fmt"

	"github.com/example/deutschbot/pkg/models"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and repair the broadcast queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.Queue.Counts(cmdContext(cmd))
		if err != nil {
			return fmt.Errorf("count jobs: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, status := range []string{models.JobPending, models.JobProcessing, models.JobSent, models.JobFailed} {
			fmt.Fprintf(out, "%-10s  %d\n", status, counts[status])
		}
		return nil
	},
}

var queueRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Return jobs stuck in processing to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stale, _ := cmd.Flags().GetInt("stale-seconds")
		if stale <= 0 {
			stale = a.Cfg.BroadcastProcessingStaleSeconds
		}
		n, err := a.Queue.RecoverStale(cmdContext(cmd), stale)
		if err != nil {
			return fmt.Errorf("recover jobs: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d job(s)\n", n)
		return nil
	},
}

func init() {
	queueRecoverCmd.Flags().Int("stale-seconds", 0, "Lease age after which a job counts as stuck (default from config)")

	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRecoverCmd)
}
