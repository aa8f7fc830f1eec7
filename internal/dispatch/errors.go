// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package dispatch

import (
	"errors"
	"fmt"
	"strings"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Cause is the failure of one candidate.
type Cause struct {
	ProviderID   int64
	ProviderName string
	StatusCode   int
	Timeout      bool
	Message      string
}

func causeOf(p types.Provider, err error) Cause {
	c := Cause{ProviderID: p.ID, ProviderName: p.Name, Message: err.Error()}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		c.StatusCode = ue.StatusCode
		c.Timeout = ue.Timeout
		if ue.Body != "" {
			c.Message = ue.Error() + ": " + ue.Body
		}
	}
	if ccgerr.IsTimeout(err) {
		c.Timeout = true
	}
	return c
}

// AllProvidersFailedError reports that every candidate failed.
type AllProvidersFailedError struct {
	CLIType types.CLIType
	Causes  []Cause
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		parts = append(parts, fmt.Sprintf("%s: %s", c.ProviderName, c.Message))
	}
	return fmt.Sprintf("all %d %s providers failed: %s", len(e.Causes), e.CLIType, strings.Join(parts, "; "))
}

// AllTimeouts reports whether every cause was a timeout.
func (e *AllProvidersFailedError) AllTimeouts() bool {
	if len(e.Causes) == 0 {
		return false
	}
	for _, c := range e.Causes {
		if !c.Timeout {
			return false
		}
	}
	return true
}

// AsAllProvidersFailed extracts the aggregated failure from err.
func AsAllProvidersFailed(err error) (*AllProvidersFailedError, bool) {
	var apf *AllProvidersFailedError
	if errors.As(err, &apf) {
		return apf, true
	}
	return nil, false
}
