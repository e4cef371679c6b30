package statestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
func (discardLogger) Crit(string, ...any)  {}

func TestManagerLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(discardLogger{}, filepath.Join(dir, "no-such.state"))
	require.NoError(t, m.Load())
	assert.False(t, m.Get().Transient.MustWriteDirty)
}

func TestManagerSaveOnlyClearsDirtyOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.state")
	m := NewManager(discardLogger{}, path)

	m.WithLock(func(s *DeviceState) { s.Persistent.TemperatureMax = 55 })
	require.True(t, m.Get().Transient.MustWriteDirty)

	require.NoError(t, m.Save())
	assert.False(t, m.Get().Transient.MustWriteDirty)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "temperature-max = 55")
}

func TestManagerRewriteBacksUpPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.state")
	require.NoError(t, os.WriteFile(path, []byte("temperature-max = 10\n"), 0644))

	m := NewManager(discardLogger{}, path)
	require.NoError(t, m.Load())
	m.WithLock(func(s *DeviceState) { s.Persistent.TemperatureMax = 20 })
	require.NoError(t, m.Save())

	backup, err := os.ReadFile(path + "~")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "temperature-max = 10")
}

func TestSafeFilenamePart(t *testing.T) {
	assert.Equal(t, "ST4000DM004", SafeFilenamePart("ST4000DM004"))
	assert.Equal(t, "WD_Red_Plus_4TB", SafeFilenamePart("WD Red Plus 4TB"))
}
