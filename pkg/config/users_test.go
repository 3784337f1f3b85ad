package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/stompd/pkg/credentials"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadUsers(t *testing.T) {
	path := writeFile(t, `
users:
  - username: alice
    password: secret
  - username: bob
    password_hash: "$2a$04$abcdefghijklmnopqrstuu"
`)

	accounts, err := LoadUsers(path)
	require.NoError(t, err)
	assert.Equal(t, []credentials.Account{
		{Username: "alice", Password: "secret"},
		{Username: "bob", PasswordHash: "$2a$04$abcdefghijklmnopqrstuu"},
	}, accounts)
}

func TestLoadUsersErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"empty", "  \n", ErrEmptyFile},
		{"bad yaml", "users: [", ErrInvalidYAML},
		{"unknown key", "users:\n  - username: a\n    pass: x\n", ErrInvalidYAML},
		{"no username", "users:\n  - password: x\n", ErrInvalidUser},
		{"no password", "users:\n  - username: a\n", ErrInvalidUser},
		{"duplicate", "users:\n  - username: a\n    password: x\n  - username: a\n    password: y\n", ErrInvalidUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadUsers(writeFile(t, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadUsersMissingFile(t *testing.T) {
	_, err := LoadUsers(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}
