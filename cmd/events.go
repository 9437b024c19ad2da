package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gorged/database"
	"gorged/models"
)

var (
	eventsInterceptor string
	eventsOutcome     string
	eventsLimit       int
	eventsJSON        bool
	purgeOlderThan    time.Duration
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Browses the recorded interceptor runs",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists recent intercept events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := database.GetRecentInterceptEvents(models.InterceptEventFilters{
			InterceptorID: eventsInterceptor,
			Outcome:       eventsOutcome,
			Limit:         eventsLimit,
		})
		if err != nil {
			return err
		}
		if eventsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No intercept events recorded.")
			return nil
		}

		writer := new(tabwriter.Writer)
		writer.Init(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
		fmt.Fprintln(writer, "TIME\tINTERCEPTOR\tOUTCOME\tDURATION\tURL\tERROR")
		fmt.Fprintln(writer, "----\t-----------\t-------\t--------\t---\t-----")
		for _, e := range events {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.DateTime),
				e.InterceptorID,
				e.Outcome,
				time.Duration(e.DurationMicros)*time.Microsecond,
				e.URL,
				e.Error.String,
			)
		}
		return writer.Flush()
	},
}

var eventsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Deletes intercept events older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeOlderThan < 0 {
			return fmt.Errorf("--older-than must not be negative")
		}
		removed, err := database.PurgeInterceptEvents(time.Now().Add(-purgeOlderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d intercept event(s).\n", removed)
		return nil
	},
}

func init() {
	eventsListCmd.Flags().StringVar(&eventsInterceptor, "interceptor", "", "only events of this interceptor id")
	eventsListCmd.Flags().StringVar(&eventsOutcome, "outcome", "", "only events with this outcome (applied or failed)")
	eventsListCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "maximum number of events")
	eventsListCmd.Flags().BoolVar(&eventsJSON, "json", false, "print JSON instead of a table")
	eventsPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 7*24*time.Hour, "age of the newest event to delete")

	eventsCmd.AddCommand(eventsListCmd, eventsPurgeCmd)
	rootCmd.AddCommand(eventsCmd)
}
