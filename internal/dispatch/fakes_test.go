// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package dispatch_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

type staticCandidates []types.Provider

func (s staticCandidates) Candidates(types.CLIType, time.Time) []types.Provider {
	return append([]types.Provider(nil), s...)
}

type outcome struct {
	id      int64
	success bool
	prompt  int64
	output  int64
}

// recorder implements both HealthRecorder and UsageRecorder.
type recorder struct {
	mu     sync.Mutex
	health []outcome
	usage  []outcome
}

func (r *recorder) RecordSuccess(_ context.Context, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = append(r.health, outcome{id: id, success: true})
}

func (r *recorder) RecordFailure(_ context.Context, id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = append(r.health, outcome{id: id})
	return false
}

func (r *recorder) healthOutcomes() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.health...)
}

func (r *recorder) usageOutcomes() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.usage...)
}

type usageRecorder struct{ *recorder }

func (u usageRecorder) RecordSuccess(_ context.Context, id int64, _ types.CLIType, prompt, output int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage = append(u.usage, outcome{id: id, success: true, prompt: prompt, output: output})
	return nil
}

func (u usageRecorder) RecordFailure(_ context.Context, id int64, _ types.CLIType) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage = append(u.usage, outcome{id: id})
	return nil
}

type fixedTimeouts struct{}

func (fixedTimeouts) Timeouts() types.TimeoutSettings { return types.DefaultTimeoutSettings() }

// scriptedTransport answers each call with the handler registered for the
// provider id.
type scriptedTransport struct {
	mu       sync.Mutex
	calls    []dispatch.Call
	handlers map[int64]func(ctx context.Context, call dispatch.Call) (*dispatch.Response, error)
}

func (s *scriptedTransport) Call(ctx context.Context, call dispatch.Call) (*dispatch.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	h := s.handlers[call.Provider.ID]
	s.mu.Unlock()
	return h(ctx, call)
}

func (s *scriptedTransport) recorded() []dispatch.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dispatch.Call(nil), s.calls...)
}

func ok(body string, usage dispatch.Usage) func(context.Context, dispatch.Call) (*dispatch.Response, error) {
	return func(context.Context, dispatch.Call) (*dispatch.Response, error) {
		return &dispatch.Response{StatusCode: 200, Body: []byte(body), Usage: usage}, nil
	}
}

func fail(status int) func(context.Context, dispatch.Call) (*dispatch.Response, error) {
	return func(context.Context, dispatch.Call) (*dispatch.Response, error) {
		return nil, &dispatch.UpstreamError{StatusCode: status, Body: "upstream says no"}
	}
}

func timeout() func(context.Context, dispatch.Call) (*dispatch.Response, error) {
	return func(context.Context, dispatch.Call) (*dispatch.Response, error) {
		return nil, &dispatch.UpstreamError{Timeout: true, Err: context.DeadlineExceeded}
	}
}

// fakeStream yields chunks then ends with final.
type fakeStream struct {
	r      io.Reader
	final  error
	usage  dispatch.Usage
	closed bool
}

func newFakeStream(body string, final error, usage dispatch.Usage) *fakeStream {
	return &fakeStream{r: strings.NewReader(body), final: final, usage: usage}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF && f.final != nil {
		return n, f.final
	}
	return n, err
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func (f *fakeStream) Usage() dispatch.Usage { return f.usage }

func testProvider(id int64, name string) types.Provider {
	return types.Provider{
		ID:               id,
		CLIType:          types.CLIClaudeCode,
		Name:             name,
		BaseURL:          "https://" + name + ".example.com",
		APIKey:           "sk-" + name,
		Enabled:          true,
		FailureThreshold: 3,
		BlacklistMinutes: 10,
	}
}
