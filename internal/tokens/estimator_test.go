// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package tokens_test

import (
	"testing"

	"github.com/ccgate-dev/ccgate/internal/tokens"
	"github.com/stretchr/testify/assert"
)

func TestCharCount(t *testing.T) {
	assert.Equal(t, 0, tokens.CharCount(""))
	assert.Equal(t, 1, tokens.CharCount("hi"))
	assert.Equal(t, 3, tokens.CharCount("twelve chars"))
}

func TestNilEstimatorFallsBack(t *testing.T) {
	var e *tokens.Estimator
	assert.Equal(t, tokens.CharCount("some text here"), e.Count("some text here"))
	assert.Equal(t, 0, (&tokens.Estimator{}).Count(""))
}

func TestCounterFunc(t *testing.T) {
	c := tokens.CounterFunc(func(s string) int { return len(s) })
	assert.Equal(t, 5, c.Count("hello"))
}

func TestPromptText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "anthropic messages",
			body: `{"model":"m","system":"be brief","messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}]}`,
			want: "be brief\nuser\ntext\nhi",
		},
		{
			name: "gemini contents",
			body: `{"contents":[{"parts":[{"text":"hello"}]}]}`,
			want: "hello",
		},
		{
			name: "model only",
			body: `{"model":"m","stream":true}`,
			want: "",
		},
		{
			name: "not json",
			body: "plain",
			want: "plain",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokens.PromptText([]byte(tt.body)))
		})
	}
}
