package store

import (
	"context"
	"time"

	"github.com/verte-zerg/prayerwall/internal/model"
)

const dayLayout = "2006-01-02"

// ListItemStats returns every item with its pending record count and the prayed
// flag of deviceID, most prayed first.
func (s *Store) ListItemStats(ctx context.Context, deviceID string) ([]model.ItemStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.key, p.title, p.count,
			(SELECT COUNT(*) FROM prayer_increments i WHERE i.item_key = p.key AND i.processed = 0),
			COALESCE((SELECT f.value FROM local_flags f WHERE f.device_id = ? AND f.flag_key = ? || p.key), 0)
		 FROM prayers p
		 ORDER BY p.count DESC, p.title ASC`, deviceID, model.FlagPrefix)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.ItemStats
	for rows.Next() {
		var st model.ItemStats
		var prayed int
		if err := rows.Scan(&st.Key, &st.Title, &st.Count, &st.Pending, &prayed); err != nil {
			return nil, err
		}
		st.Prayed = prayed != 0
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListDailyActivity groups increment records by UTC day, starting at since.
func (s *Store) ListDailyActivity(ctx context.Context, since time.Time) ([]model.DailyActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10) AS day, COUNT(*), SUM(delta)
		 FROM prayer_increments
		 WHERE substr(created_at, 1, 10) >= ?
		 GROUP BY day
		 ORDER BY day ASC`, since.UTC().Format(dayLayout))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.DailyActivity
	for rows.Next() {
		var act model.DailyActivity
		var day string
		if err := rows.Scan(&day, &act.Increments, &act.Net); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(dayLayout, day)
		if err != nil {
			return nil, err
		}
		act.Day = parsed
		result = append(result, act)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
