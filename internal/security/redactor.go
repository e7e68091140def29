// Package security keeps provider credentials out of logs and config dumps
// and throttles gateway clients.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted value.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|password|api_?key|credential|(^|_)token$)`)

// Redactor replaces secret values in strings and maps with RedactPlaceholder.
// Patterns catch well-known key formats; literals catch the exact
// credentials loaded from configuration. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns and the
// given literal secrets.
func NewRedactor(literals ...string) *Redactor {
	r := &Redactor{patterns: DefaultPatterns()}
	for _, l := range literals {
		r.AddLiteral(l)
	}
	return r
}

// AddLiteral registers an exact secret value. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	// Literals first: a configured key may be shorter than any pattern.
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap walks a decoded YAML or JSON document in place. Non-empty
// string values under secret-looking keys are replaced outright; every
// other string goes through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
	case string:
		return r.Redact(val)
	}
	return v
}

// DefaultPatterns returns patterns for the key formats of the supported
// upstreams.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// DeepSeek and OpenAI: sk-...
		regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{20,}`),
		// Groq: gsk_...
		regexp.MustCompile(`gsk_[a-zA-Z0-9]{20,}`),
		// Authorization header values.
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]{16,}`),
	}
}
