// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package tokens estimates token counts when an upstream does not report
// usage.
package tokens

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tidwall/gjson"
)

// DefaultEncoding is the tokenizer used for every provider.
const DefaultEncoding = "cl100k_base"

// Counter counts the tokens of a text.
type Counter interface {
	Count(text string) int
}

// Estimator counts with tiktoken and falls back to chars/4 when the
// encoding cannot be loaded.
type Estimator struct {
	encoding *tiktoken.Tiktoken
}

var (
	defaultOnce      sync.Once
	defaultEstimator *Estimator
)

// Default returns the process-wide estimator. The encoding is loaded on
// first use.
func Default() *Estimator {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			slog.Warn("token encoding unavailable, estimating by length", "encoding", DefaultEncoding, "error", err)
			defaultEstimator = &Estimator{}
			return
		}
		defaultEstimator = &Estimator{encoding: enc}
	})
	return defaultEstimator
}

// Count returns the token count of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e == nil || e.encoding == nil {
		return CharCount(text)
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// CharCount is the length based estimate, never below 1 for non-empty text.
func CharCount(text string) int {
	if text == "" {
		return 0
	}
	return max(len(text)/4, 1)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// promptFields hold the prompt text of the supported request dialects.
var promptFields = []string{"system", "messages", "input", "instructions", "contents", "systemInstruction"}

// PromptText concatenates every string value below the prompt fields of a
// JSON request body. Non-JSON bodies are returned unchanged.
func PromptText(body []byte) string {
	if !gjson.ValidBytes(body) {
		return string(body)
	}
	root := gjson.ParseBytes(body)
	var b strings.Builder
	for _, field := range promptFields {
		collect(root.Get(field), &b)
	}
	return b.String()
}

func collect(r gjson.Result, b *strings.Builder) {
	switch {
	case r.Type == gjson.String:
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.Str)
	case r.IsArray() || r.IsObject():
		r.ForEach(func(_, v gjson.Result) bool {
			collect(v, b)
			return true
		})
	}
}
