// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/ccgate-dev/ccgate/internal/security"
)

type authState struct {
	enabled bool
	token   string
}

// Authenticator checks the gateway token header. The token can be swapped
// at runtime by the config watcher.
type Authenticator struct {
	header string
	state  atomic.Pointer[authState]
}

func NewAuthenticator(enabled bool, header, token string) *Authenticator {
	a := &Authenticator{header: header}
	a.Update(enabled, token)
	return a
}

// Update replaces the enabled flag and the expected token.
func (a *Authenticator) Update(enabled bool, token string) {
	a.state.Store(&authState{enabled: enabled, token: token})
}

// Header returns the name of the token header.
func (a *Authenticator) Header() string {
	return a.header
}

// Middleware rejects requests without the token with 401 and requests with
// the wrong token with 403. /health and CORS preflights pass through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := a.state.Load()
		if !st.enabled || r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(a.header)
		switch {
		case got == "":
			slog.Debug("rejecting request without gateway token", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing gateway token", nil)
		case !security.TokenEqual(got, st.token):
			slog.Warn("rejecting request with invalid gateway token", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusForbidden, "forbidden", "invalid gateway token", nil)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
