package drivedb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesKnownVendorPrefix(t *testing.T) {
	db := Default()

	e, ok := db.Lookup("WDC WD40EFRX-68N32N0", "")
	require.True(t, ok)
	assert.Contains(t, e.Presets, "-H")

	_, ok = db.Lookup("SomeObscureVendor X1", "")
	assert.False(t, ok)
}

func TestLoadReplacesDefaultsWithoutAugment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- model: "^MyVendor.*"
  presets: ["-H"]
`), 0644))

	db, err := Load(path, false)
	require.NoError(t, err)

	_, ok := db.Lookup("WDC WD40EFRX-68N32N0", "")
	assert.False(t, ok, "replacing load should drop the built-in WDC entry")

	_, ok = db.Lookup("MyVendor Special", "")
	assert.True(t, ok)
}

func TestLoadAugmentsDefaultsOnTopOfBuiltins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- model: "^MyVendor.*"
  presets: ["-H"]
`), 0644))

	db, err := Load(path, true)
	require.NoError(t, err)

	_, ok := db.Lookup("WDC WD40EFRX-68N32N0", "")
	assert.True(t, ok, "augmenting load should keep built-in entries")

	_, ok = db.Lookup("MyVendor Special", "")
	assert.True(t, ok)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0644))

	_, err := Load(path, false)
	assert.Error(t, err)
}
