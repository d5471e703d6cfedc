package stats

import (
	"context"
	"time"

	"github.com/verte-zerg/prayerwall/internal/model"
)

// Source is the slice of the store reporting reads from.
type Source interface {
	ListItemStats(ctx context.Context, deviceID string) ([]model.ItemStats, error)
	ListDailyActivity(ctx context.Context, since time.Time) ([]model.DailyActivity, error)
}

// Report contains precomputed data for list and stats output.
type Report struct {
	Items    []model.ItemStats
	Activity []model.DailyActivity
	Total    int64
	Pending  int
}

// BuildReport loads item stats for deviceID and activity since the given day.
func BuildReport(ctx context.Context, src Source, deviceID string, since time.Time) (Report, error) {
	items, err := src.ListItemStats(ctx, deviceID)
	if err != nil {
		return Report{}, err
	}
	activity, err := src.ListDailyActivity(ctx, since)
	if err != nil {
		return Report{}, err
	}
	report := Report{Items: items, Activity: fillDays(activity, since)}
	for _, item := range items {
		report.Total += item.Count
		report.Pending += item.Pending
	}
	return report, nil
}

// fillDays inserts zero rows for quiet days between since and the last active day.
func fillDays(activity []model.DailyActivity, since time.Time) []model.DailyActivity {
	if len(activity) == 0 {
		return nil
	}
	start := truncateDay(since)
	end := activity[len(activity)-1].Day
	byDay := make(map[string]model.DailyActivity, len(activity))
	for _, a := range activity {
		byDay[a.Day.Format(dayLayout)] = a
	}
	var out []model.DailyActivity
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if a, ok := byDay[day.Format(dayLayout)]; ok {
			out = append(out, a)
			continue
		}
		out = append(out, model.DailyActivity{Day: day})
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
