package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakif/tapcard/internal/model"
)

// InsertVisit appends one visit row. Visits are never updated.
func (q *queries) InsertVisit(ctx context.Context, v *model.ProfileVisit) error {
	device, err := json.Marshal(v.Device)
	if err != nil {
		return fmt.Errorf("sqlite: encoding device info: %w", err)
	}

	now := time.Now().UTC()
	if v.VisitedAt.IsZero() {
		v.VisitedAt = now
	}
	v.CreatedAt = now

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO profile_visits
			(profile_id, ip_address, user_agent, referer, country, city, device_info, visited_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ProfileID,
		v.IPAddress,
		v.UserAgent,
		v.Referer,
		v.Country,
		v.City,
		string(device),
		v.VisitedAt.UTC(),
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting visit for profile %d: %w", v.ProfileID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading visit id: %w", err)
	}
	v.ID = id
	return nil
}

// DeleteVisitsByProfile removes every visit of a profile and returns how many went.
func (q *queries) DeleteVisitsByProfile(ctx context.Context, profileID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM profile_visits WHERE profile_id = ?`, profileID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting visits of profile %d: %w", profileID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting visits of profile %d: %w", profileID, err)
	}
	return n, nil
}

// VisitStats counts a profile's visits in one pass. Unique visitors are
// distinct non-empty IP addresses.
func (q *queries) VisitStats(ctx context.Context, profileID int64, now time.Time) (model.VisitStats, error) {
	var s model.VisitStats
	now = now.UTC()

	err := q.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN visited_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN visited_at >= ? THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT NULLIF(ip_address, ''))
		 FROM profile_visits WHERE profile_id = ?`,
		now.AddDate(0, 0, -7),
		now.AddDate(0, 0, -30),
		profileID,
	).Scan(&s.Total, &s.Last7Days, &s.Last30Days, &s.UniqueVisitors)
	if err != nil {
		return model.VisitStats{}, fmt.Errorf("sqlite: counting visits of profile %d: %w", profileID, err)
	}
	return s, nil
}
