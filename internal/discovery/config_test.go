package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_Clamp(t *testing.T) {
	cfg := Config{AnnounceInterval: time.Millisecond, QueryInterval: 2 * time.Hour, CleanupInterval: time.Second}
	cfg.Clamp()

	require.Equal(t, 5*time.Second, cfg.AnnounceInterval)
	require.Equal(t, time.Hour, cfg.QueryInterval)
	require.Equal(t, 10*time.Second, cfg.CleanupInterval)
}

func TestConfig_ClampLeavesInRangeValuesAlone(t *testing.T) {
	cfg := DefaultConfig()
	clamped := cfg
	clamped.Clamp()
	require.Equal(t, cfg, clamped)
}
