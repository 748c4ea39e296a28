package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chunkvault/chunkvault/internal/tokens"
	"github.com/stretchr/testify/require"
)

const testSecret = "ctl-test-secret-0123456789abcdefghij"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestTokenIssueUser(t *testing.T) {
	raw, err := run(t, "token", "issue", "alice", "--secret", testSecret, "--email", "alice@example.com")
	require.NoError(t, err)

	m, err := tokens.NewManager(testSecret, "chunkvault", time.Hour)
	require.NoError(t, err)
	tok, err := m.Verify(context.Background(), raw)
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "alice", claims["sub"])
	require.Equal(t, "alice@example.com", claims["email"])
}

func TestTokenIssueEdgeNeedsTeam(t *testing.T) {
	_, err := run(t, "token", "issue", "node-1", "--secret", testSecret, "--edge")
	require.ErrorContains(t, err, "--team")

	raw, err := run(t, "token", "issue", "node-1", "--secret", testSecret, "--edge", "--team", "t1")
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestTokenIssueRejectsWeakSecret(t *testing.T) {
	_, err := run(t, "token", "issue", "alice", "--secret", "short")
	require.ErrorIs(t, err, tokens.ErrWeakSecret)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	_, err := run(t, "migrate", "up", "--dsn", "")
	require.ErrorContains(t, err, "no DSN")
}
