package ormlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAndParseTimeISO8601RoundTrips(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 6, 12, 30, 0, 0, time.UTC)

	raw := FormatTime(now, TimeFormatISO8601)
	s, ok := raw.(string)
	require.True(t, ok)

	got, err := ParseTime(s, TimeFormatISO8601)
	require.NoError(t, err)
	assert.True(t, now.Equal(got))
}

func TestFormatAndParseTimeUnixTicksRoundTrips(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 6, 12, 30, 0, 123, time.UTC)

	raw := FormatTime(now, TimeFormatUnixTicks)
	n, ok := raw.(int64)
	require.True(t, ok)

	got, err := ParseTime(n, TimeFormatUnixTicks)
	require.NoError(t, err)
	assert.True(t, now.Equal(got))
}

func TestParseTimeNilReturnsZeroValue(t *testing.T) {
	t.Parallel()

	got, err := ParseTime(nil, TimeFormatISO8601)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestParseTimeRejectsWrongDriverType(t *testing.T) {
	t.Parallel()

	_, err := ParseTime(int64(5), TimeFormatISO8601)
	assert.Error(t, err)

	_, err = ParseTime("not-a-number", TimeFormatUnixTicks)
	assert.Error(t, err)
}
