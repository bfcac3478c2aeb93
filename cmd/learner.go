package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/database"
	"github.com/spf13/cobra"
)

var learnerCmd = &cobra.Command{
	Use:   "learner <user_id>",
	Short: "Show a learner's plan audit and lesson completion for one day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			date = clock.Today(a.Clock)
		} else if _, err := time.Parse(clock.DateLayout, date); err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
		}

		ctx := cmdContext(cmd)
		audit, err := a.Repos.Plans.AuditCounts(ctx, userID, date)
		if err != nil {
			return fmt.Errorf("read plan audit: %w", err)
		}
		done, err := a.Repos.Statistics.HasCompleted(ctx, userID, date)
		if err != nil {
			return fmt.Errorf("read completion: %w", err)
		}

		completed := "no"
		if done {
			completed = "yes"
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Learner %d on %s\n", userID, date)
		fmt.Fprintf(out, "Plans generated: %d\n", audit[database.PlanGenerated])
		fmt.Fprintf(out, "Plans reused:    %d\n", audit[database.PlanReused])
		fmt.Fprintf(out, "Completed:       %s\n", completed)
		return nil
	},
}

func init() {
	learnerCmd.Flags().String("date", "", "Calendar day YYYY-MM-DD (default today in the display timezone)")
}
