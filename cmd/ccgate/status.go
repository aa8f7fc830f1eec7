// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"fmt"
	"time"

	"github.com/ccgate-dev/ccgate/internal/server"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Query the running gateway's status endpoint and display its port, uptime and version.",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	gw, err := clientFromFlags(cmd)
	if err != nil {
		return err
	}

	var body server.StatusBody
	if err := gw.getJSON(cmd.Context(), server.AdminPrefix+"/system/status", &body); err != nil {
		if ccgerr.HasCode(err, ccgerr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", gw.addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", gw.addr, err)
		return nil
	}

	uptime := time.Duration(body.UptimeSeconds) * time.Second
	_, _ = fmt.Fprintf(out, "Gateway at %s: %s (port %d, up %s, version %s)\n",
		gw.addr, body.Status, body.Port, uptime, body.Version)
	return nil
}
