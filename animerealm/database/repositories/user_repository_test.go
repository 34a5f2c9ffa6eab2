package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSameDay(t *testing.T) {
	noon := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b time.Time
		want bool
	}{
		{"same instant", noon, noon, true},
		{"same day different hour", noon, noon.Add(9 * time.Hour), true},
		{"just before midnight vs just after", noon.Add(11*time.Hour + 59*time.Minute), noon.Add(12 * time.Hour), false},
		{"consecutive days", noon, noon.Add(24 * time.Hour), false},
		{"non-UTC zone compared by UTC day", noon, noon.In(time.FixedZone("UTC+9", 9*3600)), true},
		{"local midnight still yesterday in UTC", time.Date(2025, 3, 10, 1, 0, 0, 0, time.FixedZone("UTC+9", 9*3600)), noon, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameDay(tt.a, tt.b))
			assert.Equal(t, tt.want, sameDay(tt.b, tt.a))
		})
	}
}

func TestNeedsDailyReset(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	earlierToday := now.Add(-3 * time.Hour)

	assert.True(t, needsDailyReset(nil, now), "fresh user has no last date")
	assert.True(t, needsDailyReset(&yesterday, now))
	assert.False(t, needsDailyReset(&earlierToday, now))

	// Asking again within the same day must not flip the answer, so a
	// counter already reset today stays as-is instead of re-granting quota.
	assert.False(t, needsDailyReset(&now, now))
	assert.False(t, needsDailyReset(&now, now.Add(11*time.Hour)))
}

func TestClampedBalance(t *testing.T) {
	tests := []struct {
		raw         int64
		want        int64
		wantCorrect bool
	}{
		{raw: 5, want: 5},
		{raw: 0, want: 0},
		{raw: -1, want: 0, wantCorrect: true},
		{raw: -40, want: 0, wantCorrect: true},
	}
	for _, tt := range tests {
		got, correct := clampedBalance(tt.raw)
		assert.Equal(t, tt.want, got, "raw=%d", tt.raw)
		assert.Equal(t, tt.wantCorrect, correct, "raw=%d", tt.raw)
	}
}
