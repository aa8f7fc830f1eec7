// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ccgate-dev/ccgate/internal/config"
	"github.com/ccgate-dev/ccgate/internal/secrets"
	"github.com/ccgate-dev/ccgate/internal/server"
	"github.com/ccgate-dev/ccgate/internal/store/sqlite"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, config, admin token, database, disk space and whether a gateway is answering.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	dataDir, err := resolveDataDir(nil)
	if err != nil {
		return err
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", checkConfig},
		{"Auth", func() string { return checkAuth(cmd.Context()) }},
		{"Gateway", func() string { return checkGateway(cmd) }},
		{"Database", func() string { return checkDatabase(dataDir) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("ccgate %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig() string {
	cfgFile := viper.ConfigFileUsed()
	if _, err := config.FromViper(viper.GetViper()); err != nil {
		return fmt.Sprintf("invalid: %s", err)
	}
	if cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkAuth(ctx context.Context) string {
	if !viper.GetBool("auth.enabled") {
		return "disabled (any local process can use the gateway)"
	}
	token := viper.GetString("auth.token")
	switch {
	case token == "":
		return "enabled but no token configured"
	case secrets.IsRef(token):
		if _, err := secrets.NewResolver(secretStoreFactory()).Resolve(ctx, token); err != nil {
			return fmt.Sprintf("token %s unresolved: %s", token, err)
		}
		return fmt.Sprintf("token from %s", token)
	default:
		return "token set inline (consider 'ccgate secret set')"
	}
}

func checkGateway(cmd *cobra.Command) string {
	gw, err := clientFromFlags(cmd)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	var body server.StatusBody
	if err := gw.getJSON(cmd.Context(), server.AdminPrefix+"/system/status", &body); err != nil {
		if ccgerr.HasCode(err, ccgerr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'ccgate start')", gw.addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	uptime := (time.Duration(body.UptimeSeconds) * time.Second).String()
	return fmt.Sprintf("%s at %s (up %s)", body.Status, gw.addr, uptime)
}

func checkDatabase(dataDir string) string {
	path := filepath.Join(dataDir, sqlite.DBFileName)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("not created yet (%s)", path)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s (%s)", path, formatBytes(uint64(info.Size())))
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
		kb = 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
