package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// resetFlags restores every subcommand flag to its default so tests sharing
// rootCmd do not see each other's values.
func resetFlags(t *testing.T) {
	t.Helper()
	for _, cmd := range rootCmd.Commands() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		})
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)

	out := &bytes.Buffer{}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"serve", "hash-password", "version"})
}

func TestHashPassword(t *testing.T) {
	out, err := execute(t, "hash-password", "s3cret", "--cost", "4")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(hash, "$2a$04$"), hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestHashPasswordErrors(t *testing.T) {
	_, err := execute(t, "hash-password")
	assert.Error(t, err)

	_, err = execute(t, "hash-password", "pw", "--cost", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash password")
}

func TestVersion(t *testing.T) {
	prev := Version
	Version = "1.2.3"
	defer func() { Version = prev }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "stompd 1.2.3 ("), out)
	assert.Contains(t, out, "go")
}

func TestVersionRejectsArgs(t *testing.T) {
	_, err := execute(t, "version", "extra")
	assert.Error(t, err)
}

