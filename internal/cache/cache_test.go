package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fleetParams struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Metric string    `json:"metric"`
}

func TestKey(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := fleetParams{Start: start, End: start.Add(24 * time.Hour), Metric: "vehicle_speed"}

	k1, err := Key("fleet", p)
	require.NoError(t, err)
	k2, err := Key("fleet", p)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "analytics:fleet:"))
	assert.Len(t, strings.TrimPrefix(k1, "analytics:fleet:"), 64)

	p.Metric = "fuel_consumption"
	k3, err := Key("fleet", p)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	k4, err := Key("delivery", fleetParams{Start: start, End: start.Add(24 * time.Hour), Metric: "vehicle_speed"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)

	_, err = Key("fleet", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestResultCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewResultCache(client, 0)
	assert.Equal(t, 5*time.Minute, c.ttl)

	var out map[string]float64
	hit, err := c.Get(context.Background(), "analytics:fleet:x", &out)
	assert.False(t, hit)
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "analytics:fleet:x", map[string]float64{"a": 1}))
}
