package telemetry

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrettyHandlerRendersAttrs(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelInfo)
	defer Init(slog.LevelInfo)

	L().With("venue", "aster").Warn("hedge retry", "attempt", 2)
	Debugf("hidden")

	out := buf.String()
	assert.Contains(t, out, "WARN: hedge retry venue=aster attempt=2")
	assert.NotContains(t, out, "hidden")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("nonsense"))
}

func TestLatencyTrackerPercentiles(t *testing.T) {
	lt := NewLatencyTracker(3)
	for _, ms := range []int{50, 10, 30, 20} {
		lt.Record(time.Duration(ms) * time.Millisecond)
	}
	// Only the last three samples are kept: 10, 30, 20.
	assert.Equal(t, 20*time.Millisecond, lt.P50())
	assert.Equal(t, 20*time.Millisecond, lt.P99())
}
