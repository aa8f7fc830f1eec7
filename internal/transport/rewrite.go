// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package transport

import (
	"net/http"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// hopHeaders are never forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Te",
	"Trailer",
	"Upgrade",
}

// credentialHeaders are replaced with the provider key on the way out.
var credentialHeaders = []string{"Authorization", "X-Api-Key", "X-Goog-Api-Key"}

// ControlHeaderPrefix marks gateway control headers sent by clients. They
// are consumed by the gateway and never forwarded.
const ControlHeaderPrefix = "X-Ccg-"

// UpstreamURL joins base_url and the inbound path with exactly one slash.
func UpstreamURL(baseURL, path, rawQuery string) string {
	u := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// OutboundHeader builds the upstream request headers: hop-by-hop, gateway
// control and client credential headers are dropped and the provider key
// is set in the header each CLI flavor expects. Accept-Encoding is left to
// the HTTP client so usage can be read from decoded bodies.
func OutboundHeader(in http.Header, cliType types.CLIType, apiKey, gatewayAuthHeader string) http.Header {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}
	removeHopHeaders(out)
	out.Del("Host")
	out.Del("Content-Length")
	out.Del("Accept-Encoding")
	if gatewayAuthHeader != "" {
		out.Del(gatewayAuthHeader)
	}
	for name := range out {
		if strings.HasPrefix(name, ControlHeaderPrefix) {
			delete(out, name)
		}
	}
	for _, name := range credentialHeaders {
		out.Del(name)
	}

	out.Set("Authorization", "Bearer "+apiKey)
	switch cliType {
	case types.CLIClaudeCode:
		out.Set("X-Api-Key", apiKey)
	case types.CLIGemini:
		out.Set("X-Goog-Api-Key", apiKey)
	}
	return out
}

// ResponseHeader filters upstream response headers for the client. The
// length is recomputed by the server, and streams are re-framed.
func ResponseHeader(in http.Header, streaming bool) http.Header {
	out := in.Clone()
	if out == nil {
		return http.Header{}
	}
	removeHopHeaders(out)
	out.Del("Content-Length")
	if streaming {
		out.Del("Content-Encoding")
	}
	return out
}

var geminiModelSegment = regexp.MustCompile(`(^|/)models/([^/:]+)`)

// GeminiModel returns the model named in a Gemini path such as
// v1beta/models/gemini-2.5-pro:generateContent.
func GeminiModel(path string) string {
	m := geminiModelSegment.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[2]
}

// RewriteModel substitutes the resolved model into the outbound request.
// Gemini carries the model in the path; the other flavors in the body's
// model field. Bodies without a model field are left alone.
func RewriteModel(cliType types.CLIType, path string, body []byte, requested, resolved string) (string, []byte, error) {
	if resolved == "" || resolved == requested {
		return path, body, nil
	}
	if cliType == types.CLIGemini {
		if loc := geminiModelSegment.FindStringSubmatchIndex(path); loc != nil {
			path = path[:loc[4]] + resolved + path[loc[5]:]
			return path, body, nil
		}
	}
	if !gjson.GetBytes(body, "model").Exists() {
		return path, body, nil
	}
	out, err := sjson.SetBytes(body, "model", resolved)
	if err != nil {
		return path, body, err
	}
	return path, out, nil
}
