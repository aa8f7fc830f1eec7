// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package transport_test

import (
	"testing"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/transport"
	"github.com/stretchr/testify/assert"
)

func TestParseUsage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want dispatch.Usage
	}{
		{
			name: "anthropic",
			body: `{"type":"message","usage":{"input_tokens":25,"output_tokens":9}}`,
			want: dispatch.Usage{PromptTokens: 25, CompletionTokens: 9},
		},
		{
			name: "anthropic message_start",
			body: `{"type":"message_start","message":{"usage":{"input_tokens":40,"output_tokens":1}}}`,
			want: dispatch.Usage{PromptTokens: 40, CompletionTokens: 1},
		},
		{
			name: "openai chat",
			body: `{"choices":[],"usage":{"prompt_tokens":11,"completion_tokens":3}}`,
			want: dispatch.Usage{PromptTokens: 11, CompletionTokens: 3},
		},
		{
			name: "openai responses event",
			body: `{"type":"response.completed","response":{"usage":{"input_tokens":70,"output_tokens":20}}}`,
			want: dispatch.Usage{PromptTokens: 70, CompletionTokens: 20},
		},
		{
			name: "gemini",
			body: `{"candidates":[],"usageMetadata":{"promptTokenCount":8,"candidatesTokenCount":5}}`,
			want: dispatch.Usage{PromptTokens: 8, CompletionTokens: 5},
		},
		{
			name: "none",
			body: `{"id":"x"}`,
		},
		{
			name: "not json",
			body: `upstream exploded`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transport.ParseUsage([]byte(tt.body)))
		})
	}
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "Hello world",
		transport.ResponseText([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"world"}]}`)))
	assert.Equal(t, "Hi",
		transport.ResponseText([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hi"}}]}`)))
	assert.Equal(t, "ab",
		transport.ResponseText([]byte(`{"candidates":[{"content":{"parts":[{"text":"a"},{"text":"b"}]}}]}`)))
	assert.Empty(t, transport.ResponseText([]byte(`{}`)))
}
