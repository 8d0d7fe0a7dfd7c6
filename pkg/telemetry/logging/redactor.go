package logging

import (
	"fmt"
	"regexp"
	"strings"
)

// Redactor blanks credential-shaped strings from log messages and
// masks values logged under sensitive keys.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern pairs a compiled regex with its replacement.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Pattern names recognized by the default redactor.
const (
	PatternGoogleKey   = "google_key"
	PatternOpenAIKey   = "openai_key"
	PatternBearerToken = "bearer_token"
	PatternBasicAuth   = "basic_auth"
)

// NewRedactor creates a Redactor with the default credential patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	defaults := []struct {
		name        string
		pattern     string
		replacement string
	}{
		{
			name:        PatternGoogleKey,
			pattern:     `AIza[0-9A-Za-z_\-]{30,}`,
			replacement: "AIza***",
		},
		{
			name:        PatternOpenAIKey,
			pattern:     `sk-[a-zA-Z0-9_\-]{8,}`,
			replacement: "sk-***",
		},
		{
			name:        PatternBearerToken,
			pattern:     `(?i)bearer\s+[a-zA-Z0-9_\-\.=]{8,}`,
			replacement: "Bearer ***",
		},
		{
			name:        PatternBasicAuth,
			pattern:     `(?i)basic\s+[a-zA-Z0-9+/=]{8,}`,
			replacement: "Basic ***",
		},
	}

	for _, d := range defaults {
		r.patterns = append(r.patterns, &redactPattern{
			name:        d.name,
			regex:       regexp.MustCompile(d.pattern),
			replacement: d.replacement,
		})
	}
}

// AddPattern registers an additional redaction pattern. Returns an error
// if the pattern does not compile.
func (r *Redactor) AddPattern(name, pattern, replacement string) error {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("redact pattern %q: %w", name, err)
	}
	r.patterns = append(r.patterns, &redactPattern{
		name:        name,
		regex:       regex,
		replacement: replacement,
	})
	return nil
}

// RedactString applies all patterns to a string.
func (r *Redactor) RedactString(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// RedactArgs redacts alternating key-value log arguments. Values under
// sensitive keys are masked to a suffix; string values elsewhere get
// pattern redaction.
func (r *Redactor) RedactArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	out := make([]any, len(args))
	copy(out, args)

	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if isSensitiveKey(key) {
			if val, ok := out[i+1].(string); ok {
				out[i+1] = maskValue(val)
			}
			continue
		}
		if val, ok := out[i+1].(string); ok {
			out[i+1] = r.RedactString(val)
		}
	}

	return out
}

// sensitiveKeySubstrings flags log keys whose values must never appear
// in full.
var sensitiveKeySubstrings = []string{
	"secret",
	"api_key",
	"apikey",
	"token",
	"password",
	"credential",
	"authorization",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// maskValue reduces a sensitive value to a masked form ending in its
// last four characters. Short values are fully masked.
func maskValue(val string) string {
	if len(val) <= 8 {
		return "***"
	}
	return "***" + KeySuffix(val)
}

// KeySuffix returns the last four characters of a credential for safe
// display in logs and status output. Credentials too short to expose a
// suffix safely come back fully masked.
func KeySuffix(secret string) string {
	const n = 4
	runes := []rune(secret)
	if len(runes) <= n {
		return "****"
	}
	return string(runes[len(runes)-n:])
}
