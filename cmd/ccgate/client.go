// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ccgate-dev/ccgate/internal/config"
	"github.com/ccgate-dev/ccgate/internal/secrets"
	"github.com/ccgate-dev/ccgate/internal/server"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultHTTPClient is the package-level HTTP client used by gateway commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// gatewayClient talks to the admin API of a running gateway.
type gatewayClient struct {
	addr       string
	baseURL    string
	authHeader string
	token      string
	http       *http.Client
}

func newGatewayClient(addr, authHeader, token string) *gatewayClient {
	if authHeader == "" {
		authHeader = config.DefaultAuthHeader
	}
	return &gatewayClient{
		addr:       addr,
		baseURL:    "http://" + addr,
		authHeader: authHeader,
		token:      token,
		http:       defaultHTTPClient,
	}
}

// clientFromFlags targets --address, or the configured listen address, and
// authenticates with the configured token. A keyring token is resolved.
func clientFromFlags(cmd *cobra.Command) (*gatewayClient, error) {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("networking.listen")
	}

	token := viper.GetString("auth.token")
	if secrets.IsRef(token) {
		resolved, err := secrets.NewResolver(secretStoreFactory()).Resolve(cmd.Context(), token)
		if err != nil {
			return nil, err
		}
		token = resolved
	}
	return newGatewayClient(addr, viper.GetString("auth.header_name"), token), nil
}

func (c *gatewayClient) getJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

// do sends body as JSON and decodes a 2xx response into dest. Connection
// refused maps to CodeCLIGatewayNotRunning.
func (c *gatewayClient) do(ctx context.Context, method, path string, body, dest any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return ccgerr.Errorf(ccgerr.CodeCLIInputInvalid, "encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return ccgerr.Errorf(ccgerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(c.authHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return ccgerr.Errorf(ccgerr.CodeCLIGatewayNotRunning, "gateway at %s is not running: %w", c.addr, err)
		}
		return ccgerr.Errorf(ccgerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return ccgerr.New(ccgerr.CodeCLIRequestFailure, "gateway returned "+resp.Status+": "+errorMessage(raw),
			ccgerr.Field("status", resp.StatusCode))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return ccgerr.Errorf(ccgerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// errorMessage extracts the message from a gateway error body or a huma
// problem document.
func errorMessage(raw []byte) string {
	var gw server.ErrorBody
	if err := json.Unmarshal(raw, &gw); err == nil && gw.Error.Message != "" {
		return gw.Error.Message
	}
	var problem struct {
		Detail string `json:"detail"`
		Errors []struct {
			Message  string `json:"message"`
			Location string `json:"location"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &problem); err == nil && problem.Detail != "" {
		parts := []string{problem.Detail}
		for _, e := range problem.Errors {
			parts = append(parts, e.Location+": "+e.Message)
		}
		return strings.Join(parts, "; ")
	}
	return strings.TrimSpace(string(raw))
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
