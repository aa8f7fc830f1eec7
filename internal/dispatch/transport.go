// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Usage is the token usage of one upstream call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0
}

// Call is one attempt against one provider. APIKey is the resolved secret;
// Provider.APIKey may still be a keyring reference.
type Call struct {
	Provider       types.Provider
	APIKey         string
	Model          string
	RequestedModel string
	Method         string
	Path           string
	RawQuery       string
	Header         http.Header
	Body           []byte
	Streaming      bool
	Timeouts       types.TimeoutSettings
	RequestID      string
}

// Stream is a streaming response body. Read returns a timeout error when
// the upstream stays silent longer than the idle timeout.
type Stream interface {
	io.ReadCloser
	// Usage reports the token usage observed so far.
	Usage() Usage
}

// Response is a successful upstream response. Exactly one of Body and
// Stream is set.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Stream     Stream
	Usage      Usage
}

// Transport performs one upstream call. Status >= 400, network errors and
// timeouts are returned as errors wrapping *UpstreamError. A streaming call
// returns only after the first byte arrived.
type Transport interface {
	Call(ctx context.Context, call Call) (*Response, error)
}

// UpstreamError is a failed attempt against one provider. StatusCode is 0
// when no response was received; Body is a truncated copy of the upstream
// error body.
type UpstreamError struct {
	StatusCode int
	Timeout    bool
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("upstream timeout: %v", e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
	default:
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
