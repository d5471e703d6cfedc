package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/prayerwall/internal/model"
	"github.com/verte-zerg/prayerwall/internal/store"
)

func TestValidateConfig(t *testing.T) {
	good := model.WallConfig{
		Shards:            4,
		PollInterval:      time.Second,
		AggregateInterval: time.Second,
		LogLevel:          "info",
	}
	require.NoError(t, validateConfig(good))

	cases := map[string]func(*model.WallConfig){
		"shards":             func(c *model.WallConfig) { c.Shards = 0 },
		"poll-interval":      func(c *model.WallConfig) { c.PollInterval = 0 },
		"aggregate-interval": func(c *model.WallConfig) { c.AggregateInterval = -time.Second },
		"log-level":          func(c *model.WallConfig) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := good
			mutate(&cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestDefaultConfigTemplateIsValidTOML(t *testing.T) {
	var decoded map[string]any
	_, err := toml.Decode(defaultConfigTemplate(), &decoded)
	require.NoError(t, err)
	assert.Contains(t, decoded, "wall")
}

func TestResolveItemByPrefix(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "wall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	a, err := st.CreateItem(ctx, model.PrayerItem{Title: "Healing for Sam"})
	require.NoError(t, err)
	_, err = st.CreateItem(ctx, model.PrayerItem{Title: "Safe travels"})
	require.NoError(t, err)

	got, err := resolveItem(ctx, st, a.Key)
	require.NoError(t, err)
	assert.Equal(t, a.Key, got.Key)

	got, err = resolveItem(ctx, st, a.Key[:30])
	require.NoError(t, err)
	assert.Equal(t, "Healing for Sam", got.Title)

	_, err = resolveItem(ctx, st, "zzzz")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = resolveItem(ctx, st, "")
	assert.ErrorContains(t, err, "matches 2 prayers")
}
