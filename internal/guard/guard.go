// Package guard enforces the read-only query boundary: a leading-verb
// allowlist for SQL strings and character-level sanitization for identifiers
// that cannot be parameter-bound.
package guard

import (
	"fmt"
	"strings"
)

// readOnlyVerbs are the only statement verbs allowed through the boundary.
var readOnlyVerbs = []string{"SELECT", "SHOW", "DESCRIBE"}

// CheckReadOnly returns a descriptive error unless sql begins (after leading
// whitespace, case-insensitively) with one of SELECT, SHOW, or DESCRIBE.
func CheckReadOnly(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("empty query: only SELECT, SHOW, and DESCRIBE statements are allowed")
	}
	verb := leadingWord(trimmed)
	for _, allowed := range readOnlyVerbs {
		if strings.EqualFold(verb, allowed) {
			return nil
		}
	}
	return fmt.Errorf("query rejected: statement verb %q is not allowed, only SELECT, SHOW, and DESCRIBE statements are permitted", verb)
}

// leadingWord returns the first run of non-separator characters in s.
// Parentheses and semicolons terminate the verb so that inputs like
// "SELECT(1)" and "DROP;" classify by their actual verb.
func leadingWord(s string) string {
	for i, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '(', ';':
			return s[:i]
		}
	}
	return s
}

// SanitizeIdentifier strips every character outside [A-Za-z0-9_] from name.
// The result is safe to embed directly into a statement between backticks.
// Sanitizing an already-sanitized name is a no-op.
func SanitizeIdentifier(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
