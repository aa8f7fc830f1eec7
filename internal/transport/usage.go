// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package transport

import (
	"bytes"
	"strings"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/tokens"
	"github.com/tidwall/gjson"
)

var (
	promptTokenPaths = []string{
		"usage.input_tokens",
		"usage.prompt_tokens",
		"message.usage.input_tokens",
		"response.usage.input_tokens",
		"usageMetadata.promptTokenCount",
	}
	completionTokenPaths = []string{
		"usage.output_tokens",
		"usage.completion_tokens",
		"message.usage.output_tokens",
		"response.usage.output_tokens",
		"usageMetadata.candidatesTokenCount",
	}
	// responseTextPaths locate generated text in complete responses.
	responseTextPaths = []string{
		"content.#.text",
		"choices.#.message.content",
		"candidates.#.content.parts.#.text",
		"output.#.content.#.text",
	}
	// deltaTextPaths locate generated text in stream events.
	deltaTextPaths = []string{
		"delta.text",
		"choices.0.delta.content",
		"candidates.0.content.parts.0.text",
		"delta",
	}
)

func firstInt(data []byte, paths []string) int64 {
	for _, r := range gjson.GetManyBytes(data, paths...) {
		if v := r.Int(); v > 0 {
			return v
		}
	}
	return 0
}

// ParseUsage reads token usage from an Anthropic, OpenAI or Gemini
// response body or stream event.
func ParseUsage(data []byte) dispatch.Usage {
	return dispatch.Usage{
		PromptTokens:     firstInt(data, promptTokenPaths),
		CompletionTokens: firstInt(data, completionTokenPaths),
	}
}

// merge keeps the non-zero fields of next. Stream events report usage
// cumulatively, so the latest value wins.
func merge(cur, next dispatch.Usage) dispatch.Usage {
	if next.PromptTokens > 0 {
		cur.PromptTokens = next.PromptTokens
	}
	if next.CompletionTokens > 0 {
		cur.CompletionTokens = next.CompletionTokens
	}
	return cur
}

func appendStrings(r gjson.Result, b *strings.Builder) {
	switch {
	case r.Type == gjson.String:
		b.WriteString(r.Str)
	case r.IsArray():
		for _, v := range r.Array() {
			appendStrings(v, b)
		}
	}
}

// ResponseText extracts the generated text of a complete response.
func ResponseText(body []byte) string {
	var b strings.Builder
	for _, r := range gjson.GetManyBytes(body, responseTextPaths...) {
		appendStrings(r, &b)
	}
	return b.String()
}

// estimate fills zero usage fields from token counts of the prompt and the
// generated text.
func estimate(u dispatch.Usage, counter tokens.Counter, requestBody []byte, completion string) dispatch.Usage {
	if u.PromptTokens == 0 {
		u.PromptTokens = int64(counter.Count(tokens.PromptText(requestBody)))
	}
	if u.CompletionTokens == 0 {
		u.CompletionTokens = int64(counter.Count(completion))
	}
	return u
}

// maxSSELine bounds a buffered partial event line.
const maxSSELine = 1 << 20

// sseScanner follows an SSE byte stream and keeps the latest reported usage
// and the generated text.
type sseScanner struct {
	line    []byte
	usage   dispatch.Usage
	text    strings.Builder
	dropped bool
}

func (s *sseScanner) Feed(b []byte) {
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			if len(s.line)+len(b) > maxSSELine {
				s.line = s.line[:0]
				s.dropped = true
				return
			}
			s.line = append(s.line, b...)
			return
		}
		if !s.dropped {
			s.line = append(s.line, b[:i]...)
			s.handleLine(s.line)
		}
		s.line = s.line[:0]
		s.dropped = false
		b = b[i+1:]
	}
}

func (s *sseScanner) handleLine(line []byte) {
	data, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("data:"))
	if !ok {
		return
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return
	}
	s.usage = merge(s.usage, ParseUsage(data))
	for _, r := range gjson.GetManyBytes(data, deltaTextPaths...) {
		if r.Type == gjson.String {
			s.text.WriteString(r.Str)
			break
		}
	}
}
