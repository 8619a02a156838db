package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	stdout := new(bytes.Buffer)
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(stdout)
	root.SetErr(new(bytes.Buffer))
	err := root.Execute()
	return stdout.String(), err
}

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "finman.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestAddUser_Success(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "", "adduser", "--username", "alice", "--email", "alice@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "User alice created successfully")
}

func TestAddUser_PromptsForPassword(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "secret\n", "adduser", "--username", "bob", "--email", "bob@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "User bob created successfully")
}

func TestAddUser_Duplicate(t *testing.T) {
	useSQLite(t)

	args := []string{"adduser", "--username", "alice", "--email", "alice@example.com", "--password", "secret"}
	_, err := execute(t, "", args...)
	require.NoError(t, err, "first run should succeed")

	_, err = execute(t, "", args...)
	require.Error(t, err, "expected error on duplicate user")
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddUser_Validation(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "", "adduser", "--password", "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--username and --email are required")

	_, err = execute(t, "   \n", "adduser", "--username", "carol", "--email", "carol@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestMigrate_SQLite(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema is up to date")
}

func TestUnknownStorageDriver(t *testing.T) {
	useSQLite(t)
	t.Setenv("STORAGE_DRIVER", "cassandra")

	_, err := execute(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}
