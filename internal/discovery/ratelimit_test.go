package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueryResponseLimiter_CapsAtTenPerSecond(t *testing.T) {
	l := newQueryResponseLimiter()
	now := time.Unix(1700000000, 0)

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow(now), "response %d should be allowed", i)
	}
	require.False(t, l.Allow(now), "11th response within the window must be dropped")
}

func TestQueryResponseLimiter_WindowSlides(t *testing.T) {
	l := newQueryResponseLimiter()
	now := time.Unix(1700000000, 0)
	for i := 0; i < 10; i++ {
		require.True(t, l.Allow(now))
	}
	require.False(t, l.Allow(now))

	later := now.Add(1100 * time.Millisecond)
	require.True(t, l.Allow(later), "window has fully slid past the first burst")
}
