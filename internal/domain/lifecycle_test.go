package domain_test

import (
	"testing"
	"time"

	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStateAt(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want domain.LifecycleState
	}{
		{"well before start", start.Add(-24 * time.Hour), domain.Scheduled},
		{"one nanosecond before start", start.Add(-time.Nanosecond), domain.Scheduled},
		{"exactly at start", start, domain.Live},
		{"middle", start.Add(time.Hour), domain.Live},
		{"one nanosecond before end", end.Add(-time.Nanosecond), domain.Live},
		{"exactly at end", end, domain.Closed},
		{"one second after end", end.Add(time.Second), domain.Closed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.StateAt(tt.now, start, end))
		})
	}
}

func TestRemaining(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	assert.Equal(t, 30*time.Minute, domain.Remaining(start.Add(-30*time.Minute), start, end))
	assert.Equal(t, 90*time.Minute, domain.Remaining(start.Add(30*time.Minute), start, end))
	assert.Equal(t, time.Duration(0), domain.Remaining(end, start, end))
	assert.Equal(t, time.Duration(0), domain.Remaining(end.Add(time.Hour), start, end))
}

func TestCountdown(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(3 * 24 * time.Hour)

	tests := []struct {
		now  time.Time
		want string
	}{
		{start.Add(-(2*time.Hour + 5*time.Minute + 30*time.Second)), "Starts in 2h 5m"},
		{start.Add(-45 * time.Second), "Starts in 45s"},
		{start, "Ends in 3d 0h"},
		{end.Add(-(4*time.Minute + 10*time.Second)), "Ends in 4m 10s"},
		{end.Add(-300 * time.Millisecond), "Ends in 0s"},
		{end, "Ended"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Countdown(tt.now, start, end))
		})
	}
}

func TestParseLifecycleState(t *testing.T) {
	s, ok := domain.ParseLifecycleState("live")
	assert.True(t, ok)
	assert.Equal(t, domain.Live, s)

	_, ok = domain.ParseLifecycleState("open")
	assert.False(t, ok)
}
