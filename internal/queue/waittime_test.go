package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitTime(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "less than a minute ago"},
		{29 * time.Second, "less than a minute ago"},
		{30 * time.Second, "1 minute ago"},
		{89 * time.Second, "1 minute ago"},
		{90 * time.Second, "2 minutes ago"},
		{45 * time.Minute, "about 1 hour ago"},
		{44 * time.Minute, "44 minutes ago"},
		{89 * time.Minute, "about 1 hour ago"},
		{90 * time.Minute, "about 2 hours ago"},
		{5 * time.Hour, "about 5 hours ago"},
		{23*time.Hour + 59*time.Minute, "about 24 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{41 * time.Hour, "1 day ago"},
		{42 * time.Hour, "2 days ago"},
		{10 * 24 * time.Hour, "10 days ago"},
		{30 * 24 * time.Hour, "about 1 month ago"},
		{45 * 24 * time.Hour, "about 2 months ago"},
		{120 * 24 * time.Hour, "4 months ago"},
		{366 * 24 * time.Hour, "about 1 year ago"},
		{(365 + 150) * 24 * time.Hour, "over 1 year ago"},
		{(365 + 300) * 24 * time.Hour, "almost 2 years ago"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, WaitTime(now.Add(-tc.ago), now))
		})
	}
}

func TestWaitTimeFutureAndUnknown(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "in 5 minutes", WaitTime(now.Add(5*time.Minute), now))
	assert.Equal(t, "Unknown", WaitTime(time.Time{}, now))
}
