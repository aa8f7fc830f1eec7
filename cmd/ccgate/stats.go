// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ccgate-dev/ccgate/internal/server"
	"github.com/ccgate-dev/ccgate/internal/store"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics of a running gateway",
	}
	cmd.PersistentFlags().String("start", "", "first day, YYYY-MM-DD")
	cmd.PersistentFlags().String("end", "", "last day, YYYY-MM-DD")
	cmd.PersistentFlags().Int("days", 7, "show the last N days when --start is not set (0 for all)")
	cmd.PersistentFlags().String("cli-type", "", "only this CLI type")

	cmd.AddCommand(newStatsProvidersCmd(), newStatsDailyCmd())
	return cmd
}

// statsQuery builds the stats query string from the flags.
func statsQuery(cmd *cobra.Command, now time.Time) string {
	q := url.Values{}
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	days, _ := cmd.Flags().GetInt("days")
	if start == "" && days > 0 {
		start = now.AddDate(0, 0, -(days - 1)).Format(store.DateLayout)
	}
	if start != "" {
		q.Set("start_date", start)
	}
	if end != "" {
		q.Set("end_date", end)
	}
	if cliType, _ := cmd.Flags().GetString("cli-type"); cliType != "" {
		q.Set("cli_type", cliType)
	}
	if id, _ := cmd.Flags().GetInt64("provider"); id > 0 {
		q.Set("provider_id", strconv.FormatInt(id, 10))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func newStatsProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Totals per provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var body struct {
				Stats []server.ProviderStatsBody `json:"stats"`
			}
			if err := gw.getJSON(cmd.Context(), server.AdminPrefix+"/stats/providers"+statsQuery(cmd, time.Now()), &body); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(body.Stats) == 0 {
				_, _ = fmt.Fprintln(out, "No usage recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tPROVIDER\tREQUESTS\tSUCCESS\tFAILURE\tRATE\tTOKENS")
			for _, s := range body.Stats {
				name := s.ProviderName
				if name == "" {
					name = "(deleted)"
				}
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%.2f%%\t%d\n",
					s.ProviderID, name, s.TotalRequests, s.TotalSuccess, s.TotalFailure, s.SuccessRate, s.TotalTokens)
			}
			return tw.Flush()
		},
	}
}

func newStatsDailyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Usage per provider and day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var body struct {
				Stats []server.DailyStatsBody `json:"stats"`
			}
			if err := gw.getJSON(cmd.Context(), server.AdminPrefix+"/stats/daily"+statsQuery(cmd, time.Now()), &body); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(body.Stats) == 0 {
				_, _ = fmt.Fprintln(out, "No usage recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "DATE\tCLI\tPROVIDER\tREQUESTS\tSUCCESS\tFAILURE\tPROMPT\tCOMPLETION")
			for _, s := range body.Stats {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					s.UsageDate, s.CLIType, s.ProviderName, s.RequestCount, s.SuccessCount, s.FailureCount,
					s.PromptTokens, s.CompletionTokens)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64("provider", 0, "only this provider id")
	return cmd
}
