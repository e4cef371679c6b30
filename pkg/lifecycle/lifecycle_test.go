package lifecycle

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSingleInstanceClaimsFreshPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartmond.pid")

	require.NoError(t, EnsureSingleInstance(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestEnsureSingleInstanceRemovesStalePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartmond.pid")
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0644))

	require.NoError(t, EnsureSingleInstance(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestEnsureSingleInstanceRejectsRunningProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartmond.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644))

	err := EnsureSingleInstance(path)
	assert.Error(t, err)
}

func TestEnsureSingleInstanceRejectsEmptyPath(t *testing.T) {
	assert.Error(t, EnsureSingleInstance(""))
}
