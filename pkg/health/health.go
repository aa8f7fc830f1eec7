// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package health

import "time"

// Snapshot exposes the health state of one provider for operators. All
// fields are point-in-time values safe to serialize to JSON.
type Snapshot struct {
	ProviderID          int64      `json:"provider_id"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	BlacklistedUntil    *time.Time `json:"blacklisted_until,omitempty"`
	IsBlacklisted       bool       `json:"is_blacklisted"`
}

// UnixOrNil returns BlacklistedUntil as unix seconds, or nil when unset.
func (s Snapshot) UnixOrNil() *int64 {
	if s.BlacklistedUntil == nil {
		return nil
	}
	sec := s.BlacklistedUntil.Unix()
	return &sec
}
