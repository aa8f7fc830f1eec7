// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

// StatusBody describes the running gateway.
type StatusBody struct {
	Status        string `json:"status" example:"ok"`
	Port          int    `json:"port" doc:"Port the gateway listens on"`
	UptimeSeconds int64  `json:"uptime" doc:"Seconds since start"`
	Version       string `json:"version"`
}

type statusOutput struct {
	Body StatusBody
}

func (s *Server) registerSystemRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "system-status",
		Method:      http.MethodGet,
		Path:        AdminPrefix + "/system/status",
		Summary:     "Gateway status",
		Tags:        []string{"system"},
	}, s.handleStatus)
}

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body = StatusBody{
		Status:        "ok",
		Port:          s.port,
		UptimeSeconds: int64(time.Since(s.startedAt) / time.Second),
		Version:       s.cfg.Version,
	}
	return out, nil
}
