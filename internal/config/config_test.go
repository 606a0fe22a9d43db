package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("SCORER_VERSION", "")
	t.Setenv("SELECTION_SIZE", "")

	cfg := New()

	assert.Equal(t, "v2", cfg.Matching.ScorerVersion)
	assert.Equal(t, 5, cfg.Matching.SelectionSize)
	assert.Equal(t, 50, cfg.Matching.PoolSize)
	assert.Equal(t, time.Hour, cfg.Matching.ScoreTTL)
	assert.Equal(t, 30, cfg.Scheduler.RetentionDays)
	assert.Contains(t, cfg.DB.DSN, "@tcp(localhost:3306)/muzz")
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("SCORER_VERSION", "V1")
	t.Setenv("SELECTION_SIZE", "7")
	t.Setenv("SCORE_CACHE_TTL", "15m")
	t.Setenv("SCHEDULER_ERROR_RATE_THRESHOLD", "0.2")
	t.Setenv("SCHEDULER_ENABLED", "off")
	t.Setenv("MYSQL_DSN", "u:p@tcp(db:3306)/x")

	cfg := New()

	assert.Equal(t, "v1", cfg.Matching.ScorerVersion)
	assert.Equal(t, 7, cfg.Matching.SelectionSize)
	assert.Equal(t, 15*time.Minute, cfg.Matching.ScoreTTL)
	assert.InDelta(t, 0.2, cfg.Scheduler.ErrorRateThreshold, 1e-9)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "u:p@tcp(db:3306)/x", cfg.DB.DSN)
}

func TestNew_BadNumbersFallBack(t *testing.T) {
	t.Setenv("SELECTION_SIZE", "lots")
	t.Setenv("SCORE_CACHE_TTL", "soon")

	cfg := New()

	assert.Equal(t, 5, cfg.Matching.SelectionSize)
	assert.Equal(t, time.Hour, cfg.Matching.ScoreTTL)
}

func TestLocation(t *testing.T) {
	cfg := New()
	cfg.App.Timezone = "Europe/London"
	assert.Equal(t, "Europe/London", cfg.Location().String())

	cfg.App.Timezone = "Mars/Olympus"
	assert.Equal(t, time.UTC, cfg.Location())
}
