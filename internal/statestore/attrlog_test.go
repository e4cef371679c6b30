package statestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAttrRowAta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.ata.csv")
	at := time.Date(2026, 8, 3, 2, 0, 0, 0, time.Local)

	row := AtaAttrRow(at, []AtaAttributeSnapshot{{ID: 5, Value: 100, Raw: 0}, {ID: 194, Value: 55, Raw: 30}})
	require.NoError(t, AppendAttrRow(path, row))
	require.NoError(t, AppendAttrRow(path, row))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Len(t, lines, 2, "two ticks must append two rows, never overwrite")
	assert.Contains(t, lines[0], "5;100;0")
	assert.Contains(t, lines[0], "194;55;30")
}

func TestAppendAttrRowNvme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.nvme.csv")
	at := time.Now()

	row := NvmeAttrRow(at, 100, 3, 0, 12, 38)
	require.NoError(t, AppendAttrRow(path, row))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "available-spare;100")
	assert.Contains(t, string(data), "percentage-used;3")
}

func splitLines(s string) []string {
	var out []string
	cur := ""
	for _, c := range s {
		if c == '\n' {
			if cur != "" {
				out = append(out, cur)
			}
			cur = ""
			continue
		}
		cur += string(c)
	}
	return out
}
