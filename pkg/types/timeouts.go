// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package types

import (
	"time"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
)

// TimeoutSettings are the three upstream timeout tiers, in seconds.
type TimeoutSettings struct {
	StreamFirstByteTimeout int
	StreamIdleTimeout      int
	NonStreamTimeout       int
}

// DefaultTimeoutSettings returns 30s first byte, 60s idle and 120s non-stream.
func DefaultTimeoutSettings() TimeoutSettings {
	return TimeoutSettings{
		StreamFirstByteTimeout: 30,
		StreamIdleTimeout:      60,
		NonStreamTimeout:       120,
	}
}

func (t TimeoutSettings) Validate() error {
	if t.StreamFirstByteTimeout <= 0 {
		return ccgerr.Errorf(ccgerr.CodeSettingsInvalidInput,
			"stream_first_byte_timeout must be > 0, got %d", t.StreamFirstByteTimeout)
	}
	if t.StreamIdleTimeout <= 0 {
		return ccgerr.Errorf(ccgerr.CodeSettingsInvalidInput,
			"stream_idle_timeout must be > 0, got %d", t.StreamIdleTimeout)
	}
	if t.NonStreamTimeout <= 0 {
		return ccgerr.Errorf(ccgerr.CodeSettingsInvalidInput,
			"non_stream_timeout must be > 0, got %d", t.NonStreamTimeout)
	}
	return nil
}

func (t TimeoutSettings) FirstByte() time.Duration {
	return time.Duration(t.StreamFirstByteTimeout) * time.Second
}

func (t TimeoutSettings) Idle() time.Duration {
	return time.Duration(t.StreamIdleTimeout) * time.Second
}

func (t TimeoutSettings) NonStream() time.Duration {
	return time.Duration(t.NonStreamTimeout) * time.Second
}
