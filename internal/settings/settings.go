// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package settings serves the gateway, timeout and per CLI settings. The
// values read on the forwarding hot path are cached in atomics and refreshed
// on every write.
package settings

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// All is every settings row, as returned by the admin API.
type All struct {
	Gateway     store.GatewaySettings
	Timeouts    types.TimeoutSettings
	CLISettings []store.CLISettings
}

// GatewayPatch is a partial gateway settings update. Nil fields are kept.
type GatewayPatch struct {
	DebugLog *bool
}

// TimeoutsPatch is a partial timeout update. Nil fields are kept.
type TimeoutsPatch struct {
	StreamFirstByteTimeout *int
	StreamIdleTimeout      *int
	NonStreamTimeout       *int
}

// CLIPatch is a partial CLI settings update. Nil fields are kept.
type CLIPatch struct {
	Enabled           *bool
	DefaultJSONConfig *string
}

// Service owns the settings rows.
type Service struct {
	store  store.SettingsStore
	logger *slog.Logger

	writeMu     sync.Mutex
	seed        types.TimeoutSettings
	operatorSet bool
	timeouts    atomic.Pointer[types.TimeoutSettings]
	debugLog    atomic.Bool
}

// NewService creates a Service. seed holds the configured timeouts; they
// apply until an operator updates the timeouts through the API.
func NewService(ss store.SettingsStore, seed types.TimeoutSettings, logger *slog.Logger) (*Service, error) {
	if ss == nil {
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "settings store is required")
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: ss, logger: logger, seed: seed}
	s.timeouts.Store(&seed)
	return s, nil
}

// Load reads the persisted rows into the hot-path caches.
func (s *Service) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	gw, err := s.store.Gateway(ctx)
	if err != nil {
		return ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "loading gateway settings")
	}
	s.debugLog.Store(gw.DebugLog)

	rec, err := s.store.Timeouts(ctx)
	if err != nil {
		return ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "loading timeout settings")
	}
	s.operatorSet = !rec.UpdatedAt.IsZero()
	s.publishTimeoutsLocked(rec.TimeoutSettings)
	return nil
}

// publishTimeoutsLocked stores the effective timeouts. The caller MUST hold
// s.writeMu.
func (s *Service) publishTimeoutsLocked(persisted types.TimeoutSettings) {
	effective := persisted
	if !s.operatorSet {
		effective = s.seed
	}
	s.timeouts.Store(&effective)
}

// Timeouts returns the effective timeout tiers.
func (s *Service) Timeouts() types.TimeoutSettings {
	return *s.timeouts.Load()
}

// DebugLog reports whether per-request forward logging is on.
func (s *Service) DebugLog() bool {
	return s.debugLog.Load()
}

// SetSeed replaces the configured timeouts, used on config reload. It has
// no effect once an operator has set the timeouts.
func (s *Service) SetSeed(seed types.TimeoutSettings) error {
	if err := seed.Validate(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.seed = seed
	if !s.operatorSet {
		s.timeouts.Store(&seed)
		s.logger.Info("timeouts reloaded from config",
			"stream_first_byte_timeout", seed.StreamFirstByteTimeout,
			"stream_idle_timeout", seed.StreamIdleTimeout,
			"non_stream_timeout", seed.NonStreamTimeout,
		)
	}
	return nil
}

// All returns every settings row.
func (s *Service) All(ctx context.Context) (All, error) {
	gw, err := s.store.Gateway(ctx)
	if err != nil {
		return All{}, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "getting gateway settings")
	}
	rows, err := s.store.ListCLISettings(ctx)
	if err != nil {
		return All{}, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "listing cli settings")
	}
	cli := make([]store.CLISettings, 0, len(rows))
	for _, r := range rows {
		cli = append(cli, *r)
	}
	return All{Gateway: *gw, Timeouts: s.Timeouts(), CLISettings: cli}, nil
}

// UpdateGateway applies a partial gateway settings update.
func (s *Service) UpdateGateway(ctx context.Context, patch GatewayPatch) (store.GatewaySettings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	gw, err := s.store.Gateway(ctx)
	if err != nil {
		return store.GatewaySettings{}, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "getting gateway settings")
	}
	if patch.DebugLog != nil {
		gw.DebugLog = *patch.DebugLog
	}
	if err := s.store.UpdateGateway(ctx, gw); err != nil {
		return store.GatewaySettings{}, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "updating gateway settings")
	}
	s.debugLog.Store(gw.DebugLog)
	s.logger.Info("gateway settings updated", "debug_log", gw.DebugLog)
	return *gw, nil
}

// UpdateTimeouts applies a partial timeout update on top of the effective
// values. Every resulting tier must be positive.
func (s *Service) UpdateTimeouts(ctx context.Context, patch TimeoutsPatch) (types.TimeoutSettings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := *s.timeouts.Load()
	if patch.StreamFirstByteTimeout != nil {
		next.StreamFirstByteTimeout = *patch.StreamFirstByteTimeout
	}
	if patch.StreamIdleTimeout != nil {
		next.StreamIdleTimeout = *patch.StreamIdleTimeout
	}
	if patch.NonStreamTimeout != nil {
		next.NonStreamTimeout = *patch.NonStreamTimeout
	}
	if err := next.Validate(); err != nil {
		return types.TimeoutSettings{}, err
	}
	if err := s.store.UpdateTimeouts(ctx, next); err != nil {
		return types.TimeoutSettings{}, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "updating timeout settings")
	}
	s.operatorSet = true
	s.publishTimeoutsLocked(next)

	s.logger.Info("timeout settings updated",
		"stream_first_byte_timeout", next.StreamFirstByteTimeout,
		"stream_idle_timeout", next.StreamIdleTimeout,
		"non_stream_timeout", next.NonStreamTimeout,
	)
	return next, nil
}

// UpdateCLI applies a partial update to the settings of one CLI type.
func (s *Service) UpdateCLI(ctx context.Context, cliType types.CLIType, patch CLIPatch) (store.CLISettings, error) {
	if !cliType.Valid() {
		return store.CLISettings{}, ccgerr.Errorf(ccgerr.CodeSettingsInvalidInput, "invalid cli type %q", cliType)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cs, err := s.store.CLISettings(ctx, cliType)
	if err != nil {
		if !ccgerr.IsNotFound(err) {
			return store.CLISettings{}, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "getting cli settings")
		}
		cs = &store.CLISettings{CLIType: cliType, DefaultJSONConfig: "{}"}
	}
	if patch.Enabled != nil {
		cs.Enabled = *patch.Enabled
	}
	if patch.DefaultJSONConfig != nil {
		cs.DefaultJSONConfig = *patch.DefaultJSONConfig
	}
	if err := s.store.UpdateCLISettings(ctx, cs); err != nil {
		if ccgerr.IsInvalidInput(err) {
			return store.CLISettings{}, err
		}
		return store.CLISettings{}, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "updating cli settings")
	}
	s.logger.Info("cli settings updated", "cli_type", cliType, "enabled", cs.Enabled)
	return *cs, nil
}
