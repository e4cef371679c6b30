package statestore

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOmitsZeroValuedKeys(t *testing.T) {
	s := NewPersistentDeviceState()
	s.TemperatureMax = 42
	data := encode(s)
	text := string(data)

	assert.Contains(t, text, "temperature-max = 42")
	assert.NotContains(t, text, "temperature-min")
	assert.NotContains(t, text, "ata-error-count")
}

func TestRoundTrip(t *testing.T) {
	s := NewPersistentDeviceState()
	s.TemperatureMin = 18
	s.TemperatureMax = 61
	s.SelfTestErrors = 2
	s.ScheduledTestNextCheck = 1767225600
	s.AtaErrorCount = 7
	s.Mail[5] = MailInfo{Count: 3, FirstSentEpoch: 100, LastSentEpoch: 300}
	s.AtaAttributes = []AtaAttributeSnapshot{
		{ID: 5, Value: 100, Worst: 90, Raw: 12345, Resvd: 0, Threshold: 20},
		{ID: 194, Value: 55, Worst: 40, Raw: 0, Resvd: 0, Threshold: 0},
	}

	data := encode(s)
	got, err := decode(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, s.TemperatureMin, got.TemperatureMin)
	assert.Equal(t, s.TemperatureMax, got.TemperatureMax)
	assert.Equal(t, s.SelfTestErrors, got.SelfTestErrors)
	assert.Equal(t, s.ScheduledTestNextCheck, got.ScheduledTestNextCheck)
	assert.Equal(t, s.AtaErrorCount, got.AtaErrorCount)
	assert.Equal(t, s.Mail[5], got.Mail[5])
	require.Len(t, got.AtaAttributes, 2)
	assert.Equal(t, s.AtaAttributes[0], got.AtaAttributes[0])
}

func TestDecodeToleratesGarbageLines(t *testing.T) {
	text := "# comment\nnot a valid line at all\ntemperature-max = 50\n===\n"
	got, err := decode(strings.NewReader(text))
	require.NoError(t, err)
	assert.EqualValues(t, 50, got.TemperatureMax)
}

func TestDecodeMissingKeyReadsAsZero(t *testing.T) {
	got, err := decode(strings.NewReader("temperature-max = 50\n"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.TemperatureMin)
}
