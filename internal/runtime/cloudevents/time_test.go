package cloudevents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01T12:30:45.123456789Z", time.Date(2024, 1, 1, 12, 30, 45, 123456789, time.UTC)},
		{"2024-01-01T12:30:45Z", time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC)},
		{"2024-01-01T14:30:45+02:00", time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC)},
		{"2024-01-01T12:30:45", time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC)},
		{"2024-01-01 12:30:45", time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestFormatTime(t *testing.T) {
	assert.Empty(t, FormatTime(time.Time{}))

	local := time.Date(2024, 6, 1, 10, 0, 0, 500, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2024-06-01T08:00:00.0000005Z", FormatTime(local))
}
