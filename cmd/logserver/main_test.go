package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/logserver/internal/token"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommands(t *testing.T) {
	tokens := filepath.Join(t.TempDir(), "tokens.json")

	_, err := run(t, "--tokens", tokens, "token", "add", "alice", "abc")
	require.NoError(t, err)
	_, err = run(t, "--tokens", tokens, "token", "add", "alice", "def")
	assert.Error(t, err)
	_, err = run(t, "--tokens", tokens, "token", "add", "--force", "alice", "def")
	require.NoError(t, err)

	out, err := run(t, "--tokens", tokens, "token", "show", "alice")
	require.NoError(t, err)
	assert.Equal(t, "def\n", out)

	out, err = run(t, "--tokens", tokens, "token", "show")
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)

	_, err = run(t, "--tokens", tokens, "token", "delete")
	assert.Error(t, err)
	_, err = run(t, "--tokens", tokens, "token", "delete", "alice")
	require.NoError(t, err)
	_, err = run(t, "--tokens", tokens, "token", "show", "alice")
	assert.Error(t, err)
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "k", "server.key")
	pub := filepath.Join(dir, "k", "server.pub")
	t.Setenv("LOGSERVER_KEYS__PRIVATE_KEY", priv)
	t.Setenv("LOGSERVER_KEYS__PUBLIC_KEY", pub)
	envFile := filepath.Join(dir, "missing.env")

	out, err := run(t, "--env-file", envFile, "keygen", "--bits", "1024")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "wrote "))

	_, err = token.LoadKeyPair(priv, pub)
	require.NoError(t, err)
	info, err := os.Stat(priv)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = run(t, "--env-file", envFile, "keygen", "--bits", "1024")
	assert.Error(t, err)
	_, err = run(t, "--env-file", envFile, "keygen", "--bits", "1024", "--force")
	assert.NoError(t, err)
}
