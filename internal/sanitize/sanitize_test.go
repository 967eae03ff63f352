package sanitize

import (
	"testing"
)

var emailRule = Rule{
	Pattern:     `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	Replacement: "[redacted]",
}

var phoneRule = Rule{
	Pattern:     `(\+\d{2})\d+(\d{3})`,
	Replacement: "${1}xxx${2}",
}

func TestMaskString(t *testing.T) {
	t.Parallel()
	m, err := NewMasker([]Rule{emailRule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := []map[string]interface{}{
		{"email": "alice@example.com", "name": "Alice"},
	}
	m.MaskRows(rows)
	if rows[0]["email"] != "[redacted]" {
		t.Fatalf("expected email redacted, got %v", rows[0]["email"])
	}
	if rows[0]["name"] != "Alice" {
		t.Fatalf("expected name untouched, got %v", rows[0]["name"])
	}
}

func TestMaskCaptureGroups(t *testing.T) {
	t.Parallel()
	m, err := NewMasker([]Rule{phoneRule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := []map[string]interface{}{{"phone": "+62821233447"}}
	m.MaskRows(rows)
	if rows[0]["phone"] != "+62xxx447" {
		t.Fatalf("expected +62xxx447, got %v", rows[0]["phone"])
	}
}

func TestMaskNestedValues(t *testing.T) {
	t.Parallel()
	m, err := NewMasker([]Rule{emailRule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := []map[string]interface{}{
		{
			"profile": map[string]interface{}{
				"contact": map[string]interface{}{"email": "bob@test.org"},
				"aliases": []interface{}{"carол@x.io", 42, nil},
			},
		},
	}
	m.MaskRows(rows)
	profile := rows[0]["profile"].(map[string]interface{})
	contact := profile["contact"].(map[string]interface{})
	if contact["email"] != "[redacted]" {
		t.Fatalf("expected nested email redacted, got %v", contact["email"])
	}
	aliases := profile["aliases"].([]interface{})
	if aliases[1] != 42 || aliases[2] != nil {
		t.Fatalf("expected non-string array values untouched, got %v", aliases)
	}
}

func TestMaskRuleOrdering(t *testing.T) {
	t.Parallel()
	m, err := NewMasker([]Rule{
		phoneRule,
		{Pattern: `xxx`, Replacement: "***"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := []map[string]interface{}{{"phone": "+62821233447"}}
	m.MaskRows(rows)
	// Phone rule runs first, then the second rule rewrites its mask.
	if rows[0]["phone"] != "+62***447" {
		t.Fatalf("expected +62***447, got %v", rows[0]["phone"])
	}
}

func TestNoRulesPassThrough(t *testing.T) {
	t.Parallel()
	m, err := NewMasker(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.HasRules() {
		t.Fatal("expected HasRules to be false")
	}
	rows := []map[string]interface{}{{"email": "alice@example.com"}}
	m.MaskRows(rows)
	if rows[0]["email"] != "alice@example.com" {
		t.Fatalf("expected value untouched, got %v", rows[0]["email"])
	}
}

func TestNewMaskerInvalidPattern(t *testing.T) {
	t.Parallel()
	if _, err := NewMasker([]Rule{{Pattern: `[`, Replacement: "x"}}); err == nil {
		t.Fatal("expected error on invalid regex")
	}
}
