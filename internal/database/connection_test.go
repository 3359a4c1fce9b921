package database

import (
	"testing"
	"time"

	"site-mass-upload/internal/config"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestPoolConfig_Defaults(t *testing.T) {
	pool := poolConfig(config.DatabaseConfig{})

	assert.Equal(t, 25, pool.MaxOpenConns)
	assert.Equal(t, 5, pool.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, pool.ConnMaxLifetime)
	assert.Equal(t, time.Minute, pool.ConnMaxIdleTime)
}

func TestPoolConfig_FromSettings(t *testing.T) {
	pool := poolConfig(config.DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 4, ConnMaxLifetime: 60})

	assert.Equal(t, 10, pool.MaxOpenConns)
	assert.Equal(t, 4, pool.MaxIdleConns)
	assert.Equal(t, time.Minute, pool.ConnMaxLifetime)
}

func TestProperty_IdleNeverExceedsOpen(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("idle connections are bounded by open connections", prop.ForAll(
		func(open, idle int) bool {
			pool := poolConfig(config.DatabaseConfig{MaxOpenConns: open, MaxIdleConns: idle})
			return pool.MaxOpenConns > 0 && pool.MaxIdleConns > 0 && pool.MaxIdleConns <= pool.MaxOpenConns
		},
		gen.IntRange(-5, 100),
		gen.IntRange(-5, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestConnectionStats_Details(t *testing.T) {
	stats := &ConnectionStats{MaxOpenConnections: 25, OpenConnections: 3, InUse: 1, Idle: 2, WaitDuration: 1500 * time.Millisecond}

	details := stats.Details()
	assert.Equal(t, 3, details["open_connections"])
	assert.Equal(t, int64(1500), details["wait_ms"])
}
