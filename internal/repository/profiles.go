package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

const profileColumns = `
	agent_id, avg_visit_duration, work_start_hour, work_end_hour,
	avg_visits_per_day, avg_sale_amount, common_locations, avg_photo_quality,
	suspicious_count, timezone, visits_today, visits_day, last_updated, created_at
`

// GetProfile retrieves an agent's behavior baseline.
func (r *SQLRepository) GetProfile(ctx context.Context, agentID string) (*domain.BehaviorProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM behavior_profiles WHERE agent_id = ?`

	p, err := scanProfile(r.db.QueryRowContext(ctx, r.rebind(query), agentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProfileIfAbsent inserts the profile unless one exists and returns
// the stored row. Concurrent first sightings of an agent all observe the
// same baseline.
func (r *SQLRepository) CreateProfileIfAbsent(ctx context.Context, p *domain.BehaviorProfile) (*domain.BehaviorProfile, error) {
	if p == nil || p.AgentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	args, err := profileArgs(p)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO behavior_profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, r.rebind(query), args...); err != nil {
		return nil, err
	}
	return r.GetProfile(ctx, p.AgentID)
}

// UpsertProfile writes the full baseline, replacing any stored version.
func (r *SQLRepository) UpsertProfile(ctx context.Context, p *domain.BehaviorProfile) error {
	if p == nil || p.AgentID == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	args, err := profileArgs(p)
	if err != nil {
		return err
	}

	query := `INSERT INTO behavior_profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET
			avg_visit_duration = excluded.avg_visit_duration,
			work_start_hour = excluded.work_start_hour,
			work_end_hour = excluded.work_end_hour,
			avg_visits_per_day = excluded.avg_visits_per_day,
			avg_sale_amount = excluded.avg_sale_amount,
			common_locations = excluded.common_locations,
			avg_photo_quality = excluded.avg_photo_quality,
			suspicious_count = excluded.suspicious_count,
			timezone = excluded.timezone,
			visits_today = excluded.visits_today,
			visits_day = excluded.visits_day,
			last_updated = excluded.last_updated`

	_, err = r.db.ExecContext(ctx, r.rebind(query), args...)
	return err
}

func profileArgs(p *domain.BehaviorProfile) ([]any, error) {
	locations := p.CommonLocations
	if locations == nil {
		locations = []domain.CommonLocation{}
	}
	locs, err := json.Marshal(locations)
	if err != nil {
		return nil, fmt.Errorf("encode common locations: %w", err)
	}
	tz := p.Timezone
	if tz == "" {
		tz = domain.DefaultTimezone
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return []any{
		p.AgentID, p.AverageVisitDuration, p.WorkStartHour, p.WorkEndHour,
		p.AverageVisitsPerDay, p.AverageSaleAmount, string(locs), p.AveragePhotoQuality,
		p.SuspiciousCount, tz, p.VisitsToday, p.VisitsDay, p.LastUpdated.UTC(), created.UTC(),
	}, nil
}

func scanProfile(row rowScanner) (*domain.BehaviorProfile, error) {
	var p domain.BehaviorProfile
	var locs string

	if err := row.Scan(
		&p.AgentID, &p.AverageVisitDuration, &p.WorkStartHour, &p.WorkEndHour,
		&p.AverageVisitsPerDay, &p.AverageSaleAmount, &locs, &p.AveragePhotoQuality,
		&p.SuspiciousCount, &p.Timezone, &p.VisitsToday, &p.VisitsDay, &p.LastUpdated, &p.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(locs), &p.CommonLocations); err != nil {
		return nil, fmt.Errorf("parse common locations of %s: %w", p.AgentID, err)
	}
	if p.CommonLocations == nil {
		p.CommonLocations = []domain.CommonLocation{}
	}
	p.LastUpdated = p.LastUpdated.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
