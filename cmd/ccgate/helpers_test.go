// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/config"
	"github.com/ccgate-dev/ccgate/internal/secrets"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/stretchr/testify/require"
)

// mockSecretStore is an in-memory secrets.Store keyed by service/key.
type mockSecretStore struct {
	data map[string]string
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[secrets.DefaultService+"/"+k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(service, key, value string) error {
	m.data[service+"/"+key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(service, key string) (string, error) {
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", ccgerr.Errorf(ccgerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(service, key string) error {
	if _, ok := m.data[service+"/"+key]; !ok {
		return ccgerr.Errorf(ccgerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, service+"/"+key)
	return nil
}

func (m *mockSecretStore) List(service string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if name, ok := strings.CutPrefix(k, service+"/"); ok {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// useSecretStore swaps secretStoreFactory for the duration of the test.
func useSecretStore(t *testing.T, store *mockSecretStore) {
	t.Helper()
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }
	t.Cleanup(func() { secretStoreFactory = old })
}

// writeTestConfig writes yaml to a temp config file and points HOME at a
// temp dir so nothing touches the real user config.
func writeTestConfig(t *testing.T, yaml string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(t.TempDir(), "ccgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

// runCLI executes the root command with a fresh config and returns its
// combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := writeTestConfig(t, "logging:\n  level: \"warn\"\n")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return buf.String(), err
}

// runCLIWithInput is runCLI with stdin.
func runCLIWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfgPath := writeTestConfig(t, "logging:\n  level: \"warn\"\n")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return buf.String(), err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns the default configuration.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Networking.Listen = "127.0.0.1:0"
	return cfg
}

// startTestGateway wires a real gateway over a temp database and serves it
// with httptest. It returns the gateway and its host:port.
func startTestGateway(t *testing.T) (*Gateway, string) {
	t.Helper()
	gw, err := WireGateway(context.Background(), testConfig(t), t.TempDir(), newMockSecretStore(), discardLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	srv := httptest.NewServer(gw.Server.Handler())
	t.Cleanup(srv.Close)

	old := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	t.Cleanup(func() { defaultHTTPClient = old })

	return gw, strings.TrimPrefix(srv.URL, "http://")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
