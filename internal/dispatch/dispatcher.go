// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package dispatch forwards one inbound request to the eligible providers
// of its CLI type in priority order until one succeeds.
package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ccgate-dev/ccgate/internal/provider"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/google/uuid"
)

// Request is an inbound call to forward. RequestID is generated when empty.
type Request struct {
	CLIType   types.CLIType
	Role      types.ModelRole
	Model     string
	Method    string
	Path      string
	RawQuery  string
	Header    http.Header
	Body      []byte
	Streaming bool
	RequestID string
}

// Result is the response of the provider that succeeded.
type Result struct {
	RequestID string
	Provider  types.Provider
	Model     string
	Attempts  int
	Response  *Response
}

// CandidateSource lists eligible providers in priority order.
type CandidateSource interface {
	Candidates(cliType types.CLIType, now time.Time) []types.Provider
}

// HealthRecorder receives the outcome of every counted attempt.
type HealthRecorder interface {
	RecordSuccess(ctx context.Context, id int64)
	RecordFailure(ctx context.Context, id int64) bool
}

// UsageRecorder receives the stats of every counted attempt.
type UsageRecorder interface {
	RecordSuccess(ctx context.Context, providerID int64, cliType types.CLIType, promptTokens, completionTokens int64) error
	RecordFailure(ctx context.Context, providerID int64, cliType types.CLIType) error
}

// TimeoutSource returns the current timeout tiers.
type TimeoutSource interface {
	Timeouts() types.TimeoutSettings
}

// KeyResolver turns a stored API key value into the key to send.
type KeyResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

type plainKeys struct{}

func (plainKeys) Resolve(_ context.Context, value string) (string, error) { return value, nil }

// Config wires a Dispatcher. Keys and Logger are optional.
type Config struct {
	Candidates CandidateSource
	Health     HealthRecorder
	Usage      UsageRecorder
	Transport  Transport
	Timeouts   TimeoutSource
	Keys       KeyResolver
	Logger     *slog.Logger
}

// Dispatcher runs the failover loop.
type Dispatcher struct {
	candidates CandidateSource
	health     HealthRecorder
	usage      UsageRecorder
	transport  Transport
	timeouts   TimeoutSource
	keys       KeyResolver
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config) (*Dispatcher, error) {
	switch {
	case cfg.Candidates == nil:
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "dispatch: candidate source is required")
	case cfg.Health == nil:
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "dispatch: health recorder is required")
	case cfg.Usage == nil:
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "dispatch: usage recorder is required")
	case cfg.Transport == nil:
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "dispatch: transport is required")
	case cfg.Timeouts == nil:
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "dispatch: timeout source is required")
	}
	d := &Dispatcher{
		candidates: cfg.Candidates,
		health:     cfg.Health,
		usage:      cfg.Usage,
		transport:  cfg.Transport,
		timeouts:   cfg.Timeouts,
		keys:       cfg.Keys,
		logger:     cfg.Logger,
		now:        time.Now,
	}
	if d.keys == nil {
		d.keys = plainKeys{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d, nil
}

// SetNowFunc overrides the clock used for candidate selection.
func (d *Dispatcher) SetNowFunc(fn func() time.Time) {
	d.now = fn
}

// Dispatch forwards req. It fails with CodeDispatchNoEligibleProvider when
// no candidate exists, with CodeDispatchAllProvidersFailed wrapping an
// *AllProvidersFailedError when every candidate failed, and with
// CodeDispatchCancelled when ctx ends first. Cancellation is never counted
// against a provider.
//
// A streaming result's body records the outcome of the winning provider
// when it ends; the caller must drain or close it.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if !req.CLIType.Valid() {
		return nil, ccgerr.Errorf(ccgerr.CodeDispatchRequestInvalid, "invalid cli type %q", req.CLIType)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	logger := d.logger.With("request_id", req.RequestID, "cli_type", req.CLIType)

	candidates := d.candidates.Candidates(req.CLIType, d.now())
	if len(candidates) == 0 {
		logger.Warn("no eligible provider")
		return nil, ccgerr.New(ccgerr.CodeDispatchNoEligibleProvider,
			"no eligible provider for "+string(req.CLIType),
			ccgerr.FieldCLIType(string(req.CLIType)),
			ccgerr.FieldRequestID(req.RequestID),
		)
	}

	timeouts := d.timeouts.Timeouts()
	causes := make([]Cause, 0, len(candidates))
	for i, p := range candidates {
		if ctx.Err() != nil {
			return nil, cancelled(ctx, req.RequestID)
		}
		plog := logger.With("provider_id", p.ID, "provider", p.Name, "attempt", i+1)

		key, err := d.keys.Resolve(ctx, p.APIKey)
		if err != nil {
			plog.Error("resolving provider api key", "error", err)
			causes = append(causes, causeOf(p, err))
			continue
		}

		model := provider.Resolve(p, req.Role, req.Model)
		start := time.Now()
		resp, err := d.transport.Call(ctx, Call{
			Provider:       p,
			APIKey:         key,
			Model:          model,
			RequestedModel: req.Model,
			Method:         req.Method,
			Path:           req.Path,
			RawQuery:       req.RawQuery,
			Header:         req.Header,
			Body:           req.Body,
			Streaming:      req.Streaming,
			Timeouts:       timeouts,
			RequestID:      req.RequestID,
		})
		if err != nil {
			if ctx.Err() != nil {
				plog.Info("request cancelled by caller", "elapsed", time.Since(start))
				return nil, cancelled(ctx, req.RequestID)
			}
			cause := causeOf(p, err)
			causes = append(causes, cause)
			d.recordFailure(ctx, p, plog)
			plog.Warn("provider attempt failed",
				"status", cause.StatusCode,
				"timeout", cause.Timeout,
				"elapsed", time.Since(start),
				"error", err,
			)
			continue
		}

		res := &Result{RequestID: req.RequestID, Provider: p, Model: model, Attempts: i + 1, Response: resp}
		if resp.Stream != nil {
			resp.Stream = &committingStream{Stream: resp.Stream, ctx: ctx, d: d, p: p, logger: plog, start: start}
			plog.Info("stream started", "model", model, "ttfb", time.Since(start))
			return res, nil
		}
		d.recordSuccess(ctx, p, resp.Usage, plog)
		plog.Info("request forwarded",
			"model", model,
			"status", resp.StatusCode,
			"elapsed", time.Since(start),
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
		)
		return res, nil
	}

	logger.Warn("all providers failed", "attempts", len(causes))
	return nil, ccgerr.Wrap(&AllProvidersFailedError{CLIType: req.CLIType, Causes: causes},
		ccgerr.CodeDispatchAllProvidersFailed, "all providers failed",
		ccgerr.FieldCLIType(string(req.CLIType)),
		ccgerr.FieldRequestID(req.RequestID),
	)
}

func cancelled(ctx context.Context, requestID string) error {
	return ccgerr.Wrap(context.Cause(ctx), ccgerr.CodeDispatchCancelled, "request cancelled",
		ccgerr.FieldRequestID(requestID))
}

// Outcome writes are detached from the caller's cancellation.
func (d *Dispatcher) recordSuccess(ctx context.Context, p types.Provider, u Usage, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	d.health.RecordSuccess(ctx, p.ID)
	if err := d.usage.RecordSuccess(ctx, p.ID, p.CLIType, u.PromptTokens, u.CompletionTokens); err != nil {
		logger.Warn("recording usage", "error", err)
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, p types.Provider, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	d.health.RecordFailure(ctx, p.ID)
	if err := d.usage.RecordFailure(ctx, p.ID, p.CLIType); err != nil {
		logger.Warn("recording usage", "error", err)
	}
}

// committingStream records the outcome of a streamed response exactly once:
// success at EOF, failure on a read error, nothing when the caller went away
// or closed the stream early.
type committingStream struct {
	Stream
	ctx    context.Context
	d      *Dispatcher
	p      types.Provider
	logger *slog.Logger
	start  time.Time
	once   sync.Once
}

func (s *committingStream) Read(b []byte) (int, error) {
	n, err := s.Stream.Read(b)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.once.Do(func() {
			u := s.Stream.Usage()
			s.d.recordSuccess(s.ctx, s.p, u, s.logger)
			s.logger.Info("stream completed",
				"elapsed", time.Since(s.start),
				"prompt_tokens", u.PromptTokens,
				"completion_tokens", u.CompletionTokens,
			)
		})
	case s.ctx.Err() != nil:
		s.once.Do(func() {
			s.logger.Info("stream cancelled by caller", "elapsed", time.Since(s.start))
		})
	default:
		s.once.Do(func() {
			s.d.recordFailure(s.ctx, s.p, s.logger)
			s.logger.Warn("stream failed", "elapsed", time.Since(s.start), "error", err)
		})
	}
	return n, err
}

func (s *committingStream) Close() error {
	s.once.Do(func() {
		s.logger.Info("stream closed before completion", "elapsed", time.Since(s.start))
	})
	return s.Stream.Close()
}
