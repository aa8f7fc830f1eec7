// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package openai_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/provider/openai"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_ListsModels(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"id":"gpt-5-codex","object":"model","created":1700000000,"owned_by":"openai"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	res, err := openai.New(srv.Client()).Probe(t.Context(), srv.URL+"/", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-5-codex"}, res.Models)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/v1/models", gotPath)
}

func TestProbe_ForbiddenIsKeyInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"forbidden","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)

	_, err := openai.New(srv.Client()).Probe(t.Context(), srv.URL, "bad")
	require.Error(t, err)
	assert.True(t, ccgerr.HasCode(err, ccgerr.CodeProviderKeyInvalid))
	assert.True(t, ccgerr.IsUnauthorized(err))
}
