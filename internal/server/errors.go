// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
)

// ErrorCause is one failed provider attempt in a proxy error body.
type ErrorCause struct {
	Provider   string `json:"provider"`
	ProviderID int64  `json:"provider_id"`
	StatusCode int    `json:"status_code,omitempty"`
	Timeout    bool   `json:"timeout"`
	Message    string `json:"message"`
}

// ErrorDetail is the error object of gateway-generated error responses.
type ErrorDetail struct {
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Causes  []ErrorCause `json:"causes,omitempty"`
}

// ErrorBody is the JSON body of gateway-generated error responses.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

func writeError(w http.ResponseWriter, status int, errType, message string, causes []ErrorCause) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := ErrorBody{Error: ErrorDetail{Type: errType, Message: message, Causes: causes}}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("writing error response", "error", err)
	}
}

// apiError maps a domain error onto a huma error with the status derived
// from its code. Internal failures are logged and not echoed.
func apiError(msg string, err error) error {
	status := ccgerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway &&
		status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout {
		slog.Error(msg, "error", err)
		return huma.Error500InternalServerError(msg)
	}
	return huma.NewError(status, msg+": "+err.Error())
}
