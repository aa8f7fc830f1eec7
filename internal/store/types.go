// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package store

import (
	"time"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/tidwall/gjson"
)

// DateLayout is the usage_date format.
const DateLayout = "2006-01-02"

// GatewaySettings is the singleton gateway settings row.
type GatewaySettings struct {
	DebugLog  bool
	UpdatedAt time.Time
}

// TimeoutRecord is the singleton timeout settings row. UpdatedAt is zero
// until an operator changes the seeded values.
type TimeoutRecord struct {
	types.TimeoutSettings
	UpdatedAt time.Time
}

// CLISettings holds per CLI type console settings.
type CLISettings struct {
	CLIType           types.CLIType
	Enabled           bool
	DefaultJSONConfig string
	UpdatedAt         time.Time
}

// Validate checks the CLI type and that DefaultJSONConfig, when set, is JSON.
func (c CLISettings) Validate() error {
	if !c.CLIType.Valid() {
		return ccgerr.Errorf(ccgerr.CodeStoreSettingsInvalid, "cli settings: invalid cli type %q", c.CLIType)
	}
	if c.DefaultJSONConfig != "" && !gjson.Valid(c.DefaultJSONConfig) {
		return ccgerr.Errorf(ccgerr.CodeStoreSettingsInvalid, "cli settings %s: default_json_config is not valid JSON", c.CLIType)
	}
	return nil
}

// UsageDelta is one increment applied to a usage_daily row.
type UsageDelta struct {
	Date             string
	ProviderID       int64
	CLIType          types.CLIType
	Requests         int64
	Successes        int64
	Failures         int64
	PromptTokens     int64
	CompletionTokens int64
}

// DailyStats is one usage_daily row joined with the provider name. The name
// is empty when the provider has since been deleted.
type DailyStats struct {
	UsageDate        string
	ProviderID       int64
	ProviderName     string
	CLIType          types.CLIType
	RequestCount     int64
	SuccessCount     int64
	FailureCount     int64
	PromptTokens     int64
	CompletionTokens int64
}

// ProviderTotals sums usage_daily rows per provider over a filter.
type ProviderTotals struct {
	ProviderID       int64
	ProviderName     string
	Requests         int64
	Successes        int64
	Failures         int64
	PromptTokens     int64
	CompletionTokens int64
}

// UsageFilter narrows usage queries. Zero values match everything; dates are
// inclusive YYYY-MM-DD bounds.
type UsageFilter struct {
	StartDate  string
	EndDate    string
	CLIType    types.CLIType
	ProviderID int64
}

// Validate checks the date bounds.
func (f UsageFilter) Validate() error {
	var start, end time.Time
	var err error
	if f.StartDate != "" {
		if start, err = time.Parse(DateLayout, f.StartDate); err != nil {
			return ccgerr.Errorf(ccgerr.CodeStatsQueryInvalid, "invalid start_date %q: want YYYY-MM-DD", f.StartDate)
		}
	}
	if f.EndDate != "" {
		if end, err = time.Parse(DateLayout, f.EndDate); err != nil {
			return ccgerr.Errorf(ccgerr.CodeStatsQueryInvalid, "invalid end_date %q: want YYYY-MM-DD", f.EndDate)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return ccgerr.Errorf(ccgerr.CodeStatsQueryInvalid, "end_date %s is before start_date %s", f.EndDate, f.StartDate)
	}
	if f.CLIType != "" && !f.CLIType.Valid() {
		return ccgerr.Errorf(ccgerr.CodeStatsQueryInvalid, "invalid cli_type %q", f.CLIType)
	}
	return nil
}
