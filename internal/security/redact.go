// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package security holds the redaction helpers used before anything from a
// forwarded request reaches a log line, and the admin token comparison.
package security

import (
	"crypto/subtle"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const redacted = "[REDACTED]"

// sensitiveHeaders are masked wholesale in logged header sets.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"x-goog-api-key":      true,
	"api-key":             true,
	"cookie":              true,
	"set-cookie":          true,
}

// secretPatterns match credentials that can appear inside request or
// response bodies.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{32,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`),
	regexp.MustCompile(`xox[bpas]-[A-Za-z0-9-]+`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// invisibleCharReplacer strips zero-width characters that would otherwise
// split a key and hide it from the patterns.
var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
	"\u00ad", "",
	"\u2060", "",
)

// MaskKey shows the first and last four characters of a key, or only
// "***" when the key has 8 characters or fewer.
func MaskKey(key string) string {
	if utf8.RuneCountInString(key) <= 8 {
		return "***"
	}
	r := []rune(key)
	return string(r[:4]) + "***" + string(r[len(r)-4:])
}

// Headers returns a flattened copy of h safe to log. Credential headers are
// masked and any configured extra header names (the admin token header)
// are replaced outright.
func Headers(h http.Header, extra ...string) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		lower := strings.ToLower(name)
		value := strings.Join(values, ", ")
		switch {
		case slices.ContainsFunc(extra, func(e string) bool { return strings.EqualFold(e, name) }):
			out[name] = redacted
		case sensitiveHeaders[lower]:
			out[name] = maskCredential(value)
		default:
			out[name] = Text(value)
		}
	}
	return out
}

// maskCredential keeps an auth scheme visible and masks the credential.
func maskCredential(value string) string {
	if scheme, cred, ok := strings.Cut(value, " "); ok && strings.EqualFold(scheme, "bearer") {
		return scheme + " " + MaskKey(cred)
	}
	return MaskKey(value)
}

// Text replaces every credential-looking substring of s with [REDACTED].
// Matching runs on the NFKC form so full-width or zero-width obfuscation
// does not hide a key.
func Text(s string) string {
	s = norm.NFKC.String(invisibleCharReplacer.Replace(s))

	type span struct{ start, end int }
	var spans []span
	for _, re := range secretPatterns {
		for _, loc := range re.FindAllStringIndex(s, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	if len(spans) == 0 {
		return s
	}

	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			last.end = max(last.end, sp.end)
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	b.Grow(len(s))
	pos := 0
	for _, sp := range merged {
		b.WriteString(s[pos:sp.start])
		b.WriteString(redacted)
		pos = sp.end
	}
	b.WriteString(s[pos:])
	return b.String()
}

// Body returns a redacted, truncated rendering of a payload for debug logs.
func Body(body []byte, limit int) string {
	if !utf8.Valid(body) {
		return "[binary data]"
	}
	s := string(body)
	truncated := false
	if limit > 0 && len(s) > limit {
		s = s[:limit]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
		truncated = true
	}
	s = Text(s)
	if truncated {
		s += "... [truncated]"
	}
	return s
}

// TokenEqual compares two tokens in constant time.
func TokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
