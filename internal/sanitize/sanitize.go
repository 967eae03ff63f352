// Package sanitize applies regex-based masking to result row values before
// they leave the server, for redacting PII the agent has no business seeing.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule is a single regex replacement applied to string field values.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Masker applies the configured rules to every string value in a result set,
// recursing into nested JSON objects and arrays.
type Masker struct {
	rules []compiledRule
}

// NewMasker compiles the rule patterns. Returns an error on invalid regex.
func NewMasker(rules []Rule) (*Masker, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Masker{rules: compiled}, nil
}

// HasRules reports whether any rules are configured.
func (m *Masker) HasRules() bool {
	return len(m.rules) > 0
}

// MaskRows applies all rules to each field value in rows, in place.
func (m *Masker) MaskRows(rows []map[string]interface{}) []map[string]interface{} {
	if len(m.rules) == 0 {
		return rows
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = m.maskValue(v)
		}
	}
	return rows
}

func (m *Masker) maskValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		for _, rule := range m.rules {
			val = rule.pattern.ReplaceAllString(val, rule.replacement)
		}
		return val
	case map[string]interface{}:
		for k, inner := range val {
			val[k] = m.maskValue(inner)
		}
		return val
	case []interface{}:
		for i, inner := range val {
			val[i] = m.maskValue(inner)
		}
		return val
	default:
		// Numeric, bool, nil and friends pass through untouched.
		return v
	}
}
