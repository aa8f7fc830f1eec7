// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ccgate-dev/ccgate/internal/server"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change runtime settings of a running gateway",
	}

	cmd.AddCommand(
		newSettingsShowCmd(),
		newSettingsDebugLogCmd(),
		newSettingsTimeoutsCmd(),
		newSettingsCLICmd(),
	)

	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print all settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var body server.SettingsBody
			if err := gw.getJSON(cmd.Context(), server.AdminPrefix+"/settings", &body); err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func printSettings(out io.Writer, s server.SettingsBody) {
	_, _ = fmt.Fprintf(out, "Debug log:              %t\n", s.Gateway.DebugLog)
	_, _ = fmt.Fprintf(out, "Stream first byte:      %ds\n", s.Timeouts.StreamFirstByteTimeout)
	_, _ = fmt.Fprintf(out, "Stream idle:            %ds\n", s.Timeouts.StreamIdleTimeout)
	_, _ = fmt.Fprintf(out, "Non-stream:             %ds\n", s.Timeouts.NonStreamTimeout)
	for _, c := range s.CLISettings {
		cfg := "-"
		if c.DefaultJSONConfig != "" {
			cfg = fmt.Sprintf("%d bytes", len(c.DefaultJSONConfig))
		}
		_, _ = fmt.Fprintf(out, "CLI %-12s        enabled=%t default_config=%s\n", c.CLIType, c.Enabled, cfg)
	}
}

func newSettingsDebugLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "debug-log <on|off>",
		Short:     "Toggle logging of redacted request and response bodies",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var body server.GatewaySettingsBody
			if err := gw.do(cmd.Context(), "PUT", server.AdminPrefix+"/settings/gateway", map[string]any{"debug_log": on}, &body); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Debug log: %t\n", body.DebugLog)
			return nil
		},
	}
}

func parseSwitch(arg string) (bool, error) {
	switch arg {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(arg)
	if err != nil {
		return false, ccgerr.Errorf(ccgerr.CodeCLIInputInvalid, "want on or off, got %q", arg)
	}
	return b, nil
}

func newSettingsTimeoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeouts",
		Short: "Update timeout tiers in seconds; unset flags keep their value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := map[string]any{}
			for flag, field := range map[string]string{
				"first-byte": "stream_first_byte_timeout",
				"idle":       "stream_idle_timeout",
				"non-stream": "non_stream_timeout",
			} {
				if !cmd.Flags().Changed(flag) {
					continue
				}
				v, _ := cmd.Flags().GetInt(flag)
				if v < 1 {
					return ccgerr.Errorf(ccgerr.CodeCLIInputInvalid, "--%s must be at least 1 second", flag)
				}
				req[field] = v
			}
			if len(req) == 0 {
				return ccgerr.New(ccgerr.CodeCLIInputInvalid, "set at least one of --first-byte, --idle, --non-stream")
			}

			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var body server.TimeoutsBody
			if err := gw.do(cmd.Context(), "PUT", server.AdminPrefix+"/settings/timeouts", req, &body); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Timeouts: first byte %ds, idle %ds, non-stream %ds\n",
				body.StreamFirstByteTimeout, body.StreamIdleTimeout, body.NonStreamTimeout)
			return nil
		},
	}
	cmd.Flags().Int("first-byte", 0, "seconds to wait for the first streamed byte")
	cmd.Flags().Int("idle", 0, "seconds allowed between streamed chunks")
	cmd.Flags().Int("non-stream", 0, "seconds allowed for a whole non-streaming response")
	return cmd
}

func newSettingsCLICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cli <claude_code|codex|gemini>",
		Short: "Update the settings of one CLI type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{}
			if cmd.Flags().Changed("enabled") {
				v, _ := cmd.Flags().GetBool("enabled")
				req["enabled"] = v
			}
			if cmd.Flags().Changed("config-file") {
				path, _ := cmd.Flags().GetString("config-file")
				doc := ""
				if path != "" {
					data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
					if err != nil {
						return ccgerr.Errorf(ccgerr.CodeCLIInputInvalid, "reading %s: %w", path, err)
					}
					if !gjson.ValidBytes(data) {
						return ccgerr.Errorf(ccgerr.CodeCLIInputInvalid, "%s is not valid JSON", path)
					}
					doc = string(data)
				}
				req["default_json_config"] = doc
			}
			if len(req) == 0 {
				return ccgerr.New(ccgerr.CodeCLIInputInvalid, "set --enabled or --config-file")
			}

			gw, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var body server.CLISettingsBody
			if err := gw.do(cmd.Context(), "PUT", server.AdminPrefix+"/settings/cli/"+args[0], req, &body); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "CLI %s: enabled=%t, default config %d bytes\n",
				body.CLIType, body.Enabled, len(body.DefaultJSONConfig))
			return nil
		},
	}
	cmd.Flags().Bool("enabled", false, "whether the CLI type is enabled (unchanged when omitted)")
	cmd.Flags().String("config-file", "", "JSON file with the default CLI config (empty string clears it)")
	return cmd
}
