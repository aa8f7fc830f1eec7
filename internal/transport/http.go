// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package transport forwards a dispatch.Call to a provider over HTTP under
// the configured timeout tiers.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/security"
	"github.com/ccgate-dev/ccgate/internal/tokens"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxIdleConns   = 20
	DefaultMaxBodyBytes   = 32 << 20

	// errorBodyLimit bounds the upstream error body kept for causes.
	errorBodyLimit = 512
	// debugBodyLimit bounds bodies written to debug logs.
	debugBodyLimit = 2000
	firstChunkSize = 32 << 10
)

// Options configure the HTTP transport. Zero values select the defaults.
// GatewayAuthHeader is stripped from outbound requests. DebugLog turns
// per-request forward logging on while it returns true.
type Options struct {
	Client            *http.Client
	ConnectTimeout    time.Duration
	MaxIdleConns      int
	MaxBodyBytes      int64
	Tokens            tokens.Counter
	GatewayAuthHeader string
	DebugLog          func() bool
	Logger            *slog.Logger
}

// HTTP implements dispatch.Transport.
type HTTP struct {
	client       *http.Client
	maxBodyBytes int64
	tokens       tokens.Counter
	authHeader   string
	debugLog     func() bool
	logger       *slog.Logger
}

var _ dispatch.Transport = (*HTTP)(nil)

// NewClient returns an HTTP client with a bounded dial and a shared idle
// pool. It sets no overall timeout; every call carries its own deadline.
func NewClient(connectTimeout time.Duration, maxIdleConns int) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if maxIdleConns <= 0 {
		maxIdleConns = DefaultMaxIdleConns
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = connectTimeout
	tr.MaxIdleConns = maxIdleConns
	tr.MaxIdleConnsPerHost = maxIdleConns
	return &http.Client{Transport: tr}
}

func New(opts Options) *HTTP {
	t := &HTTP{
		client:       opts.Client,
		maxBodyBytes: opts.MaxBodyBytes,
		tokens:       opts.Tokens,
		authHeader:   opts.GatewayAuthHeader,
		debugLog:     opts.DebugLog,
		logger:       opts.Logger,
	}
	if t.client == nil {
		t.client = NewClient(opts.ConnectTimeout, opts.MaxIdleConns)
	}
	if t.maxBodyBytes <= 0 {
		t.maxBodyBytes = DefaultMaxBodyBytes
	}
	if t.tokens == nil {
		t.tokens = tokens.Default()
	}
	if t.debugLog == nil {
		t.debugLog = func() bool { return false }
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Call forwards call. Non-streaming calls are bounded as a whole by the
// non-stream timeout. Streaming calls return once the first chunk arrived
// within the first-byte timeout; the returned stream enforces the idle
// timeout on every later read.
func (t *HTTP) Call(ctx context.Context, call dispatch.Call) (*dispatch.Response, error) {
	path, body, err := RewriteModel(call.Provider.CLIType, call.Path, call.Body, call.RequestedModel, call.Model)
	if err != nil {
		return nil, ccgerr.Wrap(err, ccgerr.CodeTransportRequestInvalid, "rewriting model")
	}
	url := UpstreamURL(call.Provider.BaseURL, path, call.RawQuery)
	header := OutboundHeader(call.Header, call.Provider.CLIType, call.APIKey, t.authHeader)

	debug := t.debugLog()
	logger := t.logger.With("request_id", call.RequestID, "provider", call.Provider.Name)
	if debug {
		logger.Debug("forwarding request",
			"method", call.Method,
			"url", url,
			"streaming", call.Streaming,
			"model", call.Model,
			"headers", security.Headers(header, t.authHeader),
			"body", security.Body(body, debugBodyLimit),
		)
	}

	if call.Streaming {
		return t.stream(ctx, call, url, header, body, logger, debug)
	}
	return t.roundTrip(ctx, call, url, header, body, logger, debug)
}

func (t *HTTP) newRequest(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Request, error) {
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, ccgerr.Wrapf(err, ccgerr.CodeTransportRequestInvalid, "building upstream request")
	}
	req.Header = header
	return req, nil
}

func (t *HTTP) roundTrip(ctx context.Context, call dispatch.Call, url string, header http.Header, body []byte, logger *slog.Logger, debug bool) (*dispatch.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, call.Timeouts.NonStream())
	defer cancel()

	req, err := t.newRequest(ctx, call.Method, url, header, body)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, requestError(ctx, err, "non-stream")
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes+1))
	if err != nil {
		return nil, requestError(ctx, err, "non-stream")
	}
	if int64(len(data)) > t.maxBodyBytes {
		return nil, ccgerr.Wrap(&dispatch.UpstreamError{StatusCode: resp.StatusCode, Err: errors.New("response body too large")},
			ccgerr.CodeTransportUpstreamFailure, "reading upstream response")
	}

	if debug {
		logger.Debug("upstream response",
			"status", resp.StatusCode,
			"elapsed", time.Since(start),
			"headers", security.Headers(resp.Header),
			"body", security.Body(data, debugBodyLimit),
		)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp.StatusCode, data)
	}

	usage := ParseUsage(data)
	if usage.IsZero() {
		usage = estimate(usage, t.tokens, call.Body, ResponseText(data))
	}
	return &dispatch.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
		Usage:      usage,
	}, nil
}

func (t *HTTP) stream(ctx context.Context, call dispatch.Call, url string, header http.Header, body []byte, logger *slog.Logger, debug bool) (*dispatch.Response, error) {
	sctx, cancel := context.WithCancel(ctx)
	var firstByteExpired atomic.Bool
	timer := time.AfterFunc(call.Timeouts.FirstByte(), func() {
		firstByteExpired.Store(true)
		cancel()
	})
	fail := func(err error) (*dispatch.Response, error) {
		timer.Stop()
		cancel()
		return nil, err
	}

	req, err := t.newRequest(sctx, call.Method, url, header, body)
	if err != nil {
		return fail(err)
	}
	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if firstByteExpired.Load() {
			return fail(timeoutError(err, "first byte"))
		}
		return fail(requestError(sctx, err, "stream"))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
		if debug {
			logger.Debug("upstream stream rejected", "status", resp.StatusCode, "body", security.Body(data, debugBodyLimit))
		}
		return fail(statusError(resp.StatusCode, data))
	}

	buf := make([]byte, firstChunkSize)
	var n int
	for n == 0 && err == nil {
		n, err = resp.Body.Read(buf)
	}
	// A timer that already fired has cancelled sctx, so the stream would
	// fail on its next read even when this read returned data.
	fired := !timer.Stop()
	if n > 0 && fired {
		_ = resp.Body.Close()
		return fail(timeoutError(context.DeadlineExceeded, "first byte"))
	}
	if n == 0 {
		_ = resp.Body.Close()
		switch {
		case firstByteExpired.Load():
			return fail(timeoutError(err, "first byte"))
		case errors.Is(err, io.EOF):
			return fail(ccgerr.Wrap(&dispatch.UpstreamError{StatusCode: resp.StatusCode, Err: io.ErrUnexpectedEOF},
				ccgerr.CodeTransportUpstreamFailure, "upstream closed stream before first byte"))
		default:
			return fail(requestError(sctx, err, "stream"))
		}
	}

	if debug {
		logger.Debug("upstream stream started", "status", resp.StatusCode, "ttfb", time.Since(start))
	}

	s := newStream(resp.Body, buf[:n], cancel, call.Timeouts.Idle(), t.tokens, call.Body)
	return &dispatch.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Stream:     s,
	}, nil
}

func statusError(status int, body []byte) error {
	if len(body) > errorBodyLimit {
		body = body[:errorBodyLimit]
	}
	return ccgerr.Wrap(&dispatch.UpstreamError{StatusCode: status, Body: security.Text(string(body))},
		ccgerr.CodeTransportUpstreamFailure, "upstream rejected request")
}

func timeoutError(err error, tier string) error {
	if err == nil {
		err = context.DeadlineExceeded
	}
	return ccgerr.Wrap(&dispatch.UpstreamError{Timeout: true, Err: err},
		ccgerr.CodeTransportUpstreamTimeout, tier+" timeout")
}

// requestError classifies a failed request. A deadline from the tier
// context is a timeout; anything else, including caller cancellation, is
// a transport failure the dispatcher sorts out.
func requestError(ctx context.Context, err error, tier string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(err, tier)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutError(err, tier)
	}
	return ccgerr.Wrap(&dispatch.UpstreamError{Err: err}, ccgerr.CodeTransportUpstreamFailure, "upstream request failed")
}
