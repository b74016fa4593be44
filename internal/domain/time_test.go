package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	utc := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339 zulu", "2024-05-01T10:30:00Z", utc},
		{"rfc3339 offset", "2024-05-01T12:30:00+02:00", utc},
		{"naive iso is utc", "2024-05-01T10:30:00", utc},
		{"space separated", "2024-05-01 10:30:00", utc},
		{"date only", "2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"padded", "  2024-05-01T10:30:00Z  ", utc},
		{"empty", "", time.Time{}},
		{"garbage", "yesterday-ish", time.Time{}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseTimestamp(tc.in)
			assert.True(t, got.Equal(tc.want), "got %v, want %v", got, tc.want)
		})
	}
}

func TestRecordHasTimestamp(t *testing.T) {
	t.Parallel()

	assert.False(t, Record{Text: "x"}.HasTimestamp())
	assert.True(t, Record{Text: "x", PostedAt: time.Now()}.HasTimestamp())
}
