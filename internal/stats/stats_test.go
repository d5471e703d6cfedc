package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/prayerwall/internal/model"
	"github.com/verte-zerg/prayerwall/internal/store"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Key", "Count", "Title"}
	rows := [][]string{
		{"a1", "12", "Healing"},
		{"b22", "3", "Travel"},
	}
	lines := formatTable(headers, rows, map[int]bool{1: true})
	require.Len(t, lines, 3)
	assert.Equal(t, "Key Count Title", lines[0])
	assert.Equal(t, "a1     12 Healing", lines[1])
	assert.Equal(t, "b22     3 Travel", lines[2])
}

func TestTopPrayers(t *testing.T) {
	items := []model.ItemStats{
		{Title: "b", Count: 3},
		{Title: "a", Count: 3},
		{Title: "c", Count: 9},
		{Title: "d", Count: 1},
	}
	top := TopPrayers(items, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{top[0].Title, top[1].Title, top[2].Title})
	assert.Nil(t, TopPrayers(items, 0))
	assert.Len(t, TopPrayers(items, 10), 4)
}

func TestRenderListTruncatesTitles(t *testing.T) {
	var buf bytes.Buffer
	items := []model.ItemStats{
		{Key: "0123456789abcdef", Title: "A very long prayer request title that will not fit", Count: 4, Pending: 1, Prayed: true},
	}
	require.NoError(t, RenderList(&buf, items, 50))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "01234567"))
	assert.Contains(t, lines[1], "yes")
	assert.Contains(t, lines[1], "…")
	assert.LessOrEqual(t, displayWidth(lines[1]), 50)
}

func TestRenderListEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderList(&buf, nil, 80))
	assert.Equal(t, "No prayer requests yet.\n", buf.String())
}

func TestBuildReportAndRenderStats(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "prayerwall.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	ctx := context.Background()

	day1 := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	a, err := st.CreateItem(ctx, model.PrayerItem{Title: "Harvest"})
	require.NoError(t, err)
	b, err := st.CreateItem(ctx, model.PrayerItem{Title: "Mission trip"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = st.AppendIncrement(ctx, model.IncrementRecord{ItemKey: a.Key, Delta: 1, CreatedAt: day1})
		require.NoError(t, err)
	}
	_, err = st.FoldIncrements(ctx)
	require.NoError(t, err)
	_, err = st.AppendIncrement(ctx, model.IncrementRecord{ItemKey: b.Key, Delta: 1, CreatedAt: day1.AddDate(0, 0, 2)})
	require.NoError(t, err)

	report, err := BuildReport(ctx, st, "device", day1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Total)
	assert.Equal(t, 1, report.Pending)
	require.Len(t, report.Activity, 3)
	assert.Equal(t, 0, report.Activity[1].Increments)

	var buf bytes.Buffer
	require.NoError(t, RenderStats(&buf, report, 1, 60))
	out := buf.String()
	assert.Contains(t, out, "Requests 2  Prayers 3  Pending 1")
	assert.Contains(t, out, "Harvest")
	assert.NotContains(t, out, "Mission trip")
	assert.Contains(t, out, "2026-06-01 3 +3 ")
	assert.Contains(t, out, "2026-06-02 0 +0")
}
