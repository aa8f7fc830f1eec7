// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/tokens"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
)

// stream relays an upstream SSE body. Every Read that waits on the
// upstream is bounded by the idle timeout.
type stream struct {
	body        io.ReadCloser
	pending     []byte
	cancel      context.CancelFunc
	idle        time.Duration
	timer       *time.Timer
	timedOut    atomic.Bool
	tokens      tokens.Counter
	requestBody []byte

	mu      sync.Mutex
	scanner sseScanner

	closeOnce sync.Once
	closeErr  error
}

var _ dispatch.Stream = (*stream)(nil)

func newStream(body io.ReadCloser, first []byte, cancel context.CancelFunc, idle time.Duration, counter tokens.Counter, requestBody []byte) *stream {
	s := &stream{
		body:        body,
		pending:     first,
		cancel:      cancel,
		idle:        idle,
		tokens:      counter,
		requestBody: requestBody,
	}
	s.timer = time.AfterFunc(idle, func() {
		s.timedOut.Store(true)
		cancel()
	})
	s.timer.Stop()
	return s
}

func (s *stream) Read(p []byte) (int, error) {
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		s.feed(p[:n])
		return n, nil
	}

	s.timer.Reset(s.idle)
	n, err := s.body.Read(p)
	s.timer.Stop()
	s.feed(p[:n])

	switch {
	case err == nil, errors.Is(err, io.EOF):
		return n, err
	case s.timedOut.Load():
		return n, timeoutError(err, "stream idle")
	default:
		return n, ccgerr.Wrap(&dispatch.UpstreamError{Err: err}, ccgerr.CodeTransportUpstreamFailure, "reading upstream stream")
	}
}

func (s *stream) feed(b []byte) {
	if len(b) == 0 {
		return
	}
	s.mu.Lock()
	s.scanner.Feed(b)
	s.mu.Unlock()
}

// Usage returns the usage reported by the stream events, estimated from the
// prompt and the relayed text for fields the upstream never reported.
func (s *stream) Usage() dispatch.Usage {
	s.mu.Lock()
	u := s.scanner.usage
	text := s.scanner.text.String()
	s.mu.Unlock()
	if u.PromptTokens > 0 && u.CompletionTokens > 0 {
		return u
	}
	return estimate(u, s.tokens, s.requestBody, text)
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.timer.Stop()
		s.cancel()
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
