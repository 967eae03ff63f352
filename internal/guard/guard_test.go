package guard

import (
	"strings"
	"testing"
)

func TestCheckReadOnlyAllowed(t *testing.T) {
	t.Parallel()
	allowed := []string{
		"SELECT * FROM users",
		"select 1",
		"  \t\n SELECT id FROM t",
		"SHOW TABLES",
		"show full tables",
		"DESCRIBE users",
		"describe `users`",
		"SeLeCt version()",
		"SELECT(1)",
	}
	for _, sql := range allowed {
		if err := CheckReadOnly(sql); err != nil {
			t.Fatalf("expected %q to be allowed, got error: %v", sql, err)
		}
	}
}

func TestCheckReadOnlyRejected(t *testing.T) {
	t.Parallel()
	rejected := []string{
		"DROP TABLE x",
		"INSERT INTO users (name) VALUES ('a')",
		"UPDATE users SET name = 'a'",
		"DELETE FROM users",
		"TRUNCATE users",
		"CREATE TABLE foo (id int)",
		"ALTER TABLE users ADD COLUMN x int",
		"GRANT ALL ON *.* TO 'x'",
		"WITH q AS (SELECT 1) SELECT * FROM q",
		"EXPLAIN SELECT 1",
		"desc users", // DESC is not in the allowlist, DESCRIBE is
		"SET @x = 1",
		"",
		"   ",
		"; DROP TABLE x",
	}
	for _, sql := range rejected {
		if err := CheckReadOnly(sql); err == nil {
			t.Fatalf("expected %q to be rejected", sql)
		}
	}
}

func TestCheckReadOnlyErrorNamesVerb(t *testing.T) {
	t.Parallel()
	err := CheckReadOnly("DROP TABLE x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `"DROP"`) {
		t.Fatalf("expected error to name the rejected verb, got: %v", err)
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"users", "users"},
		{"user_accounts", "user_accounts"},
		{"Users2", "Users2"},
		{"users; DROP TABLE x", "usersDROPTABLEx"},
		{"`users`", "users"},
		{"a-b.c", "abc"},
		{"таблица", ""},
		{"", ""},
		{" spaced out ", "spacedout"},
	}
	for _, tc := range cases {
		if got := SanitizeIdentifier(tc.in); got != tc.want {
			t.Fatalf("SanitizeIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeIdentifierIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{"users; DROP TABLE x", "`quoted`", "plain_name", "a b c"}
	for _, in := range inputs {
		once := SanitizeIdentifier(in)
		twice := SanitizeIdentifier(once)
		if once != twice {
			t.Fatalf("sanitization not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
