// Package model defines shared data structures.
package model

import (
	"time"
)

// FlagPrefix prefixes every device-local prayed flag key.
const FlagPrefix = "prayed_"

// WallConfig defines wall settings.
type WallConfig struct {
	Author            string
	Shards            int
	PollInterval      time.Duration
	AggregateInterval time.Duration
	LogLevel          string
}

// PrayerItem is a single request on the wall. Count is the authoritative aggregate
// and is only ever written by the aggregator.
type PrayerItem struct {
	Key       string
	Title     string
	Body      string
	Author    string
	CreatedAt time.Time
	Count     int64
}

// IncrementRecord is one signed delta appended to an item's counter log.
type IncrementRecord struct {
	ID        string
	ItemKey   string
	Delta     int
	Shard     int
	CreatedAt time.Time
}

// DeltaFor returns +1 when the item is now prayed and -1 when it is not.
func DeltaFor(prayed bool) int {
	if prayed {
		return 1
	}
	return -1
}

// FlagKey builds the device flag key for an item.
func FlagKey(itemKey string) string {
	return FlagPrefix + itemKey
}
