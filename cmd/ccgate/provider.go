// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ccgate-dev/ccgate/internal/server"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/spf13/cobra"
)

func newProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "provider",
		Aliases: []string{"providers"},
		Short:   "Manage upstream providers of a running gateway",
	}

	cmd.AddCommand(
		newProviderListCmd(),
		newProviderAddCmd(),
		newProviderRemoveCmd(),
		newProviderEnableCmd(true),
		newProviderEnableCmd(false),
		newProviderTestCmd(),
		newProviderActionCmd("reset", "reset-failures", "Reset a provider's consecutive failure counter"),
		newProviderActionCmd("unblacklist", "unblacklist", "Return a blacklisted provider to service"),
		newProviderReorderCmd(),
	)

	return cmd
}

func newProviderListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List providers in priority order",
		RunE:  runProviderList,
	}
	cmd.Flags().String("cli-type", "", "only list providers of this CLI type (claude_code, codex, gemini)")
	return cmd
}

func runProviderList(cmd *cobra.Command, _ []string) error {
	gw, err := clientFromFlags(cmd)
	if err != nil {
		return err
	}

	path := server.AdminPrefix + "/providers"
	if cliType, _ := cmd.Flags().GetString("cli-type"); cliType != "" {
		path += "?cli_type=" + url.QueryEscape(cliType)
	}
	var body struct {
		Providers []server.ProviderBody `json:"providers"`
	}
	if err := gw.getJSON(cmd.Context(), path, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Providers) == 0 {
		_, _ = fmt.Fprintln(out, "No providers configured.")
		return nil
	}
	writeProviderTable(out, body.Providers, time.Now())
	return nil
}

func writeProviderTable(out io.Writer, providers []server.ProviderBody, now time.Time) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCLI\tORDER\tNAME\tBASE URL\tKEY\tSTATE\tFAILURES")
	for _, p := range providers {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%d/%d\n",
			p.ID, p.CLIType, p.SortOrder, p.Name, p.BaseURL, p.APIKey,
			providerState(p, now), p.ConsecutiveFailures, p.FailureThreshold)
	}
	_ = tw.Flush()
}

func providerState(p server.ProviderBody, now time.Time) string {
	switch {
	case !p.Enabled:
		return "disabled"
	case p.IsBlacklisted && p.BlacklistedUntil != nil:
		left := time.Unix(*p.BlacklistedUntil, 0).Sub(now).Round(time.Second)
		return "blacklisted (" + left.String() + ")"
	case p.IsBlacklisted:
		return "blacklisted"
	default:
		return "active"
	}
}

func newProviderAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a provider at the end of its CLI type's order",
		Example: `  ccgate provider add --cli-type claude_code --name relay-a \
    --base-url https://relay-a.example.com --api-key keyring://ccgate/relay-a \
    --map sonnet=claude-sonnet-4-5 --map opus=claude-opus-4-1`,
		RunE: runProviderAdd,
	}
	cmd.Flags().String("cli-type", "", "CLI type: claude_code, codex or gemini")
	cmd.Flags().String("name", "", "unique name within the CLI type")
	cmd.Flags().String("base-url", "", "upstream base URL")
	cmd.Flags().String("api-key", "", "API key or keyring:// reference")
	cmd.Flags().StringArray("map", nil, "model role mapping role=model (repeatable)")
	cmd.Flags().Int("failure-threshold", 0, "consecutive failures before blacklisting (default from config)")
	cmd.Flags().Int("blacklist-minutes", 0, "blacklist window in minutes (default from config)")
	cmd.Flags().Bool("disabled", false, "create the provider disabled")
	for _, name := range []string{"cli-type", "name", "base-url", "api-key"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// parseModelMaps turns role=model pairs into admin API model maps.
func parseModelMaps(pairs []string) ([]server.ModelMapBody, error) {
	maps := make([]server.ModelMapBody, 0, len(pairs))
	for _, pair := range pairs {
		role, model, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(model) == "" {
			return nil, ccgerr.Errorf(ccgerr.CodeCLIInputInvalid, "invalid --map %q: want role=model", pair)
		}
		r, err := types.ParseModelRole(strings.TrimSpace(role))
		if err != nil {
			return nil, ccgerr.Wrapf(err, ccgerr.CodeCLIInputInvalid, "invalid --map %q", pair)
		}
		maps = append(maps, server.ModelMapBody{Role: string(r), TargetModel: strings.TrimSpace(model), Enabled: true})
	}
	return maps, nil
}

func runProviderAdd(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	cliType, _ := f.GetString("cli-type")
	name, _ := f.GetString("name")
	baseURL, _ := f.GetString("base-url")
	apiKey, _ := f.GetString("api-key")
	pairs, _ := f.GetStringArray("map")
	threshold, _ := f.GetInt("failure-threshold")
	minutes, _ := f.GetInt("blacklist-minutes")
	disabled, _ := f.GetBool("disabled")

	if _, err := types.ParseCLIType(cliType); err != nil {
		return ccgerr.Wrap(err, ccgerr.CodeCLIInputInvalid, "invalid --cli-type")
	}
	maps, err := parseModelMaps(pairs)
	if err != nil {
		return err
	}

	gw, err := clientFromFlags(cmd)
	if err != nil {
		return err
	}
	enabled := !disabled
	req := map[string]any{
		"cli_type": cliType,
		"name":     name,
		"base_url": baseURL,
		"api_key":  apiKey,
		"enabled":  enabled,
	}
	if threshold > 0 {
		req["failure_threshold"] = threshold
	}
	if minutes > 0 {
		req["blacklist_minutes"] = minutes
	}
	if len(maps) > 0 {
		req["model_maps"] = maps
	}

	var created server.ProviderBody
	if err := gw.do(cmd.Context(), "POST", server.AdminPrefix+"/providers", req, &created); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added provider %d: %s (%s, position %d)\n",
		created.ID, created.Name, created.CLIType, created.SortOrder)
	return nil
}

func parseProviderID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, ccgerr.Errorf(ccgerr.CodeCLIInputInvalid, "invalid provider id %q", arg)
	}
	return id, nil
}

func providerPath(id int64, suffix string) string {
	return fmt.Sprintf("%s/providers/%d%s", server.AdminPrefix, id, suffix)
}

func newProviderRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a provider",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderID(args[0])
			if err != nil {
				return err
			}
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := gw.do(cmd.Context(), "DELETE", providerPath(id, ""), nil, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted provider %d\n", id)
			return nil
		},
	}
}

func newProviderEnableCmd(enable bool) *cobra.Command {
	use, short := "disable <id>", "Stop routing requests to a provider"
	if enable {
		use, short = "enable <id>", "Route requests to a provider again"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderID(args[0])
			if err != nil {
				return err
			}
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var p server.ProviderBody
			if err := gw.do(cmd.Context(), "PUT", providerPath(id, ""), map[string]any{"enabled": enable}, &p); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Provider %d (%s): %s\n", p.ID, p.Name, providerState(p, time.Now()))
			return nil
		},
	}
}

func newProviderTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Check a provider's key and connectivity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderID(args[0])
			if err != nil {
				return err
			}
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var res server.ProbeBody
			if err := gw.do(cmd.Context(), "POST", providerPath(id, "/test"), nil, &res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.OK {
				_, _ = fmt.Fprintf(out, "Provider %d: FAILED: %s\n", id, res.Error)
				return nil
			}
			_, _ = fmt.Fprintf(out, "Provider %d: OK (%d models, %dms)\n", id, res.ModelCount, res.LatencyMS)
			return nil
		},
	}
}

func newProviderActionCmd(use, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderID(args[0])
			if err != nil {
				return err
			}
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var p server.ProviderBody
			if err := gw.do(cmd.Context(), "POST", providerPath(id, "/"+action), nil, &p); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Provider %d (%s): %s, %d consecutive failures\n",
				p.ID, p.Name, providerState(p, time.Now()), p.ConsecutiveFailures)
			return nil
		},
	}
}

func newProviderReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id> [id...]",
		Short: "Set the priority order of one CLI type's providers",
		Long:  "Pass every provider id of one CLI type, highest priority first.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseProviderID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var body struct {
				Providers []server.ProviderBody `json:"providers"`
			}
			if err := gw.do(cmd.Context(), "POST", server.AdminPrefix+"/providers/reorder", map[string]any{"ids": ids}, &body); err != nil {
				return err
			}
			writeProviderTable(cmd.OutOrStdout(), body.Providers, time.Now())
			return nil
		},
	}
}
