package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScanJSON(t *testing.T) {
	raw := `{"devices":[{"name":"/dev/sda","info_name":"/dev/sda"},{"name":"/dev/nvme0","info_name":"/dev/nvme0"}]}`
	names, err := parseScanJSON([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/sda", "/dev/nvme0"}, names)
}

func TestParseScanJSONEmpty(t *testing.T) {
	names, err := parseScanJSON([]byte(`{"devices":[]}`))
	require.NoError(t, err)
	assert.Empty(t, names)
}
