// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/transport"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Gateway control headers. Clients may send the CLI type and model role
// explicitly; the gateway answers with the serving provider and request id.
const (
	HeaderCLIType   = "X-CCG-CLI-Type"
	HeaderModelRole = "X-CCG-Model-Role"
	HeaderProvider  = "X-CCG-Provider"
	HeaderRequestID = "X-CCG-Request-Id"
)

const streamChunkSize = 32 << 10

// DetectCLIType infers the CLI flavor of an inbound request from the
// explicit header, then the path and User-Agent. Unknown requests are
// treated as claude_code.
func DetectCLIType(r *http.Request) types.CLIType {
	if explicit := r.Header.Get(HeaderCLIType); explicit != "" {
		if cliType, err := types.ParseCLIType(explicit); err == nil {
			return cliType
		}
	}

	path := strings.ToLower(r.URL.Path)
	ua := strings.ToLower(r.UserAgent())
	switch {
	case strings.Contains(path, "/v1/messages") || strings.Contains(path, "anthropic"):
		return types.CLIClaudeCode
	case strings.Contains(path, "/responses"):
		return types.CLICodex
	case strings.Contains(path, "/chat/completions"):
		if strings.Contains(ua, "codex") {
			return types.CLICodex
		}
		return types.CLIClaudeCode
	case strings.Contains(path, "gemini") || strings.Contains(path, "generativelanguage") ||
		strings.Contains(path, ":generatecontent") || strings.Contains(path, ":streamgeneratecontent"):
		return types.CLIGemini
	case strings.Contains(ua, "codex"):
		return types.CLICodex
	case strings.Contains(ua, "gemini"):
		return types.CLIGemini
	}
	return types.CLIClaudeCode
}

var roleKeywords = []struct {
	role     types.ModelRole
	keywords []string
}{
	{types.RoleHaiku, []string{"haiku"}},
	{types.RoleSonnet, []string{"sonnet"}},
	{types.RoleOpus, []string{"opus"}},
	{types.RoleReasoning, []string{"reason", "thinking", "o1", "o3", "o4"}},
}

// DetectRole returns the explicit role header when valid, else the role
// named by the requested model, else primary.
func DetectRole(r *http.Request, model string) types.ModelRole {
	if explicit := r.Header.Get(HeaderModelRole); explicit != "" {
		if role, err := types.ParseModelRole(explicit); err == nil {
			return role
		}
	}
	m := strings.ToLower(model)
	for _, rk := range roleKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(m, kw) {
				return rk.role
			}
		}
	}
	return types.RolePrimary
}

// RequestedModel reads the model from a Gemini path or the body's model field.
func RequestedModel(cliType types.CLIType, path string, body []byte) string {
	if cliType == types.CLIGemini {
		if m := transport.GeminiModel(path); m != "" {
			return m
		}
	}
	return gjson.GetBytes(body, "model").String()
}

// IsStreaming reports whether the client asked for a streamed response.
func IsStreaming(cliType types.CLIType, r *http.Request, body []byte) bool {
	if cliType == types.CLIGemini {
		if strings.Contains(r.URL.Path, ":streamGenerateContent") || r.URL.Query().Get("alt") == "sse" {
			return true
		}
	}
	return gjson.GetBytes(body, "stream").Bool()
}

func (s *Server) registerProxy() {
	s.router.HandleFunc("/admin/*", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no admin route "+r.Method+" "+r.URL.Path, nil)
	})
	s.router.HandleFunc("/*", s.handleProxy)
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "reading request body: "+err.Error(), nil)
		return
	}

	cliType := DetectCLIType(r)
	model := RequestedModel(cliType, r.URL.Path, body)
	req := dispatch.Request{
		CLIType:   cliType,
		Role:      DetectRole(r, model),
		Model:     model,
		Method:    r.Method,
		Path:      r.URL.EscapedPath(),
		RawQuery:  r.URL.RawQuery,
		Header:    r.Header,
		Body:      body,
		Streaming: IsStreaming(cliType, r, body),
	}

	res, err := s.services.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}

	resp := res.Response
	header := w.Header()
	for name, values := range transport.ResponseHeader(resp.Header, resp.Stream != nil) {
		header[name] = values
	}
	header.Set(HeaderProvider, url.PathEscape(res.Provider.Name))
	header.Set(HeaderRequestID, res.RequestID)

	if resp.Stream == nil {
		w.WriteHeader(resp.StatusCode)
		if _, err := w.Write(resp.Body); err != nil {
			s.logger.Debug("writing response", "request_id", res.RequestID, "error", err)
		}
		return
	}
	s.relayStream(w, r, res)
}

// relayStream copies the upstream stream to the client, flushing each
// chunk. A failure after the headers were sent can only end the response.
func (s *Server) relayStream(w http.ResponseWriter, r *http.Request, res *dispatch.Result) {
	stream := res.Response.Stream
	defer stream.Close()

	rc := http.NewResponseController(w)
	w.WriteHeader(res.Response.StatusCode)
	_ = rc.Flush()

	buf := make([]byte, streamChunkSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.logger.Debug("client went away mid-stream", "request_id", res.RequestID, "error", werr)
				return
			}
			if ferr := rc.Flush(); ferr != nil {
				s.logger.Debug("flushing stream", "request_id", res.RequestID, "error", ferr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && r.Context().Err() == nil {
				s.logger.Warn("stream ended with error",
					"request_id", res.RequestID,
					"provider", res.Provider.Name,
					"error", err,
				)
			}
			return
		}
	}
}

func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	if id, ok := ccgerr.FieldsOf(err)["request_id"].(string); ok {
		w.Header().Set(HeaderRequestID, id)
	}

	switch {
	case ccgerr.HasCode(err, ccgerr.CodeDispatchCancelled) || r.Context().Err() != nil:
		// Nobody is left to read the response.
		return
	case ccgerr.HasCode(err, ccgerr.CodeDispatchNoEligibleProvider):
		writeError(w, http.StatusServiceUnavailable, "no_eligible_provider", err.Error(), nil)
	case ccgerr.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	default:
		apf, ok := dispatch.AsAllProvidersFailed(err)
		if !ok {
			s.logger.Error("dispatch failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		causes := make([]ErrorCause, 0, len(apf.Causes))
		for _, c := range apf.Causes {
			causes = append(causes, ErrorCause{
				Provider:   c.ProviderName,
				ProviderID: c.ProviderID,
				StatusCode: c.StatusCode,
				Timeout:    c.Timeout,
				Message:    c.Message,
			})
		}
		status, errType := http.StatusBadGateway, "all_providers_failed"
		if apf.AllTimeouts() {
			status, errType = http.StatusGatewayTimeout, "upstream_timeout"
		}
		writeError(w, status, errType, apf.Error(), causes)
	}
}
