package control

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stratastor/smartmond/internal/probe"
	"github.com/stratastor/smartmond/pkg/config"
	"github.com/stratastor/smartmond/pkg/drivedb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDriveDBPresetAppliesMatchingEntry(t *testing.T) {
	cfg := &config.DeviceConfig{Name: "/dev/sda"}
	identity := probe.DeviceIdentity{Model: "WDC WD40EFRX-68N32N0", Transport: config.TransportATA}

	applyDriveDBPreset(drivedb.Default(), identity, cfg, discardLogger{})

	assert.True(t, cfg.SMARTCheck)
	assert.True(t, cfg.TrackUsageFailed)
}

func TestApplyDriveDBPresetNoOpWithoutMatch(t *testing.T) {
	cfg := &config.DeviceConfig{Name: "/dev/sda"}
	identity := probe.DeviceIdentity{Model: "SomeObscureVendor X1", Transport: config.TransportATA}

	applyDriveDBPreset(drivedb.Default(), identity, cfg, discardLogger{})

	assert.False(t, cfg.SMARTCheck)
}

func TestApplyDriveDBPresetLogsWarningOnBadDirective(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- model: "Broken.*"
  presets: ["-not-a-real-directive"]
`), 0644))

	db, err := drivedb.Load(path, false)
	require.NoError(t, err)

	cfg := &config.DeviceConfig{Name: "/dev/sda"}
	identity := probe.DeviceIdentity{Model: "Broken drive", Transport: config.TransportATA}

	applyDriveDBPreset(db, identity, cfg, discardLogger{})

	assert.False(t, cfg.SMARTCheck)
}
