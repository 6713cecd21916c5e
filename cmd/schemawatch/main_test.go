package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHashPassword(t *testing.T) {
	for _, tc := range []struct {
		name  string
		stdin string
		args  []string
	}{
		{"arg", "", []string{"hash-password", "s3cret"}},
		{"stdin", "s3cret\n", []string{"hash-password"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := run(t, tc.stdin, tc.args...)
			if err != nil {
				t.Fatalf("hash-password: %v", err)
			}
			hash := strings.TrimSpace(out)
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
				t.Errorf("hash does not match: %v", err)
			}
		})
	}

	if _, err := run(t, "\n", "hash-password"); err == nil {
		t.Error("empty password should fail")
	}
}

func TestOneShotCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ops.db")

	out, err := run(t, "", "status", "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("status output: %v\n%s", err, out)
	}
	if st.Count != 0 {
		t.Errorf("count: got %d", st.Count)
	}

	out, err = run(t, "", "list", "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out, "NAME") {
		t.Errorf("list header: got %q", out)
	}

	if _, err := run(t, "", "get", "Missing", "--db", db, "--log-level", "error"); err == nil {
		t.Error("get of a missing operation should fail")
	}

	out, err = run(t, "", "export", "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(out, "# GraphQL operations") {
		t.Errorf("export: got %q", out)
	}

	if _, err := run(t, "n\n", "clear", "--db", db, "--log-level", "error"); err == nil {
		t.Error("clear without confirmation should abort")
	}
	if _, err := run(t, "", "clear", "-y", "--db", db, "--log-level", "error"); err != nil {
		t.Errorf("clear -y: %v", err)
	}
}
