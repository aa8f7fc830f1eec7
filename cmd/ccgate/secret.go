// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ccgate-dev/ccgate/internal/secrets"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/spf13/cobra"
)

// secretStoreFactory creates a secrets.Store. Tests swap it for an
// in-memory store.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage API keys stored in the OS keyring",
		Long: "Store, list and delete secrets kept under the ccgate service in the operating system keyring.\n" +
			"Reference a stored secret from config or the admin API as " + secrets.Ref(secrets.DefaultService, "<name>") + ".",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret read from stdin",
		Example: `  echo -n "$RELAY_KEY" | ccgate secret set relay-a
  ccgate provider add ... --api-key keyring://ccgate/relay-a`,
		Args: cobra.ExactArgs(1),
		RunE: runSecretSet,
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

// readSecret reads the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	value, err := readSecret(cmd.InOrStdin())
	if err != nil {
		return ccgerr.Errorf(ccgerr.CodeSecretInvalidInput, "reading secret %q: %w", name, err)
	}
	if value == "" {
		return ccgerr.Errorf(ccgerr.CodeSecretInvalidInput, "secret %q: empty value on stdin", name)
	}

	if err := secretStoreFactory().Store(secrets.DefaultService, name, value); err != nil {
		return ccgerr.Errorf(ccgerr.CodeSecretStoreFailure, "storing secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s (%s)\n", name, secrets.Ref(secrets.DefaultService, name))
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(secrets.DefaultService)
	if err != nil {
		return ccgerr.Errorf(ccgerr.CodeSecretListFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := secretStoreFactory().Delete(secrets.DefaultService, name); err != nil {
		if ccgerr.HasCode(err, ccgerr.CodeSecretNotFound) {
			return ccgerr.Errorf(ccgerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return ccgerr.Errorf(ccgerr.CodeSecretDeleteFailure, "deleting secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
