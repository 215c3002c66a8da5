package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lib/pq"
)

type fakeResult struct {
	n   int64
	err error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "profiles_email_key"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"matching constraint", dup, "profiles_email_key", true},
		{"any constraint", dup, "", true},
		{"wrapped", fmt.Errorf("insert: %w", dup), "profiles_email_key", true},
		{"other constraint", dup, "profiles_username_key", false},
		{"other code", &pq.Error{Code: "23503"}, "", false},
		{"not a pq error", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireAffected(t *testing.T) {
	notFound := errors.New("not found")

	if err := requireAffected(fakeResult{n: 1}, notFound); err != nil {
		t.Errorf("one row: %v", err)
	}
	if err := requireAffected(fakeResult{n: 0}, notFound); !errors.Is(err, notFound) {
		t.Errorf("zero rows: %v, want notFound", err)
	}
	if err := requireAffected(fakeResult{err: errors.New("driver")}, notFound); err == nil || errors.Is(err, notFound) {
		t.Errorf("driver error: %v", err)
	}
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM profiles WHERE id = $1", "SELECT * FROM profiles WHERE id = $1"},
		{"SELECT * FROM profiles WHERE email = 'a@b.com'", "SELECT * FROM profiles WHERE email = '?'"},
		{"UPDATE expenses SET amount = 12.50 WHERE id = $2", "UPDATE expenses SET amount = ? WHERE id = $2"},
		{"SELECT 'it''s'", "SELECT '?'"},
		{"INSERT INTO expenses (id) VALUES ($1) RETURNING 00001_init", "INSERT INTO expenses (id) VALUES ($1) RETURNING ?_init"},
		{"SELECT col2 FROM t2 LIMIT 20", "SELECT col2 FROM t2 LIMIT ?"},
	}

	for _, tt := range tests {
		if got := sanitizeQuery(tt.in); got != tt.want {
			t.Errorf("sanitizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractSQLVerb(t *testing.T) {
	if got := extractSQLVerb("  select 1"); got != "SELECT" {
		t.Errorf("extractSQLVerb() = %q", got)
	}
	if got := extractSQLVerb("WITH inserted AS (...)"); got != "WITH" {
		t.Errorf("extractSQLVerb() = %q", got)
	}
	if got := extractSQLVerb("update\n  expenses SET status = $1"); got != "UPDATE" {
		t.Errorf("extractSQLVerb() = %q", got)
	}
}

func TestSanitizeQuery_Truncates(t *testing.T) {
	q := "SELECT " + strings.Repeat("é", 200)
	got := sanitizeQuery(q)
	if !strings.HasSuffix(got, "...") || !utf8.ValidString(got) {
		t.Errorf("truncated statement = %q", got)
	}
}
