package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/geo"
)

const eventColumns = `
	id, event_id, agent_id, kind, occurred_at,
	latitude, longitude, accuracy, location_source,
	customer_id, amount, risk_level, risk_score,
	flags, recommendations, actions, degraded, metadata, created_at
`

// AppendFraudEvent appends one audit record to the activity log.
func (r *SQLRepository) AppendFraudEvent(ctx context.Context, rec *domain.FraudEventRecord) error {
	if rec == nil || rec.ID == "" || rec.AgentID == "" {
		return fmt.Errorf("%w: record id and agent id are required", ErrInvalidInput)
	}

	flags, err := json.Marshal(rec.Flags)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	recs, err := json.Marshal(rec.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	var metadata sql.NullString
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	var lat, lng, acc sql.NullFloat64
	var source sql.NullString
	if rec.Location != nil {
		lat = sql.NullFloat64{Float64: rec.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: rec.Location.Longitude, Valid: true}
		acc = sql.NullFloat64{Float64: rec.Location.Accuracy, Valid: true}
		source = nullString(string(rec.Location.Source))
	}

	var amount sql.NullString
	if rec.Amount != nil {
		amount = sql.NullString{String: rec.Amount.String(), Valid: true}
	}

	query := `INSERT INTO activity_log (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.EventID, rec.AgentID, string(rec.Kind), rec.Timestamp.UTC().UnixMilli(),
		lat, lng, acc, source,
		nullString(rec.CustomerID), amount, string(rec.RiskLevel), rec.RiskScore,
		string(flags), string(recs), string(actions), boolToInt(rec.Degraded), metadata, rec.CreatedAt.UTC(),
	)
	return err
}

// GetFraudEvent retrieves one audit record by its result ID.
func (r *SQLRepository) GetFraudEvent(ctx context.Context, id string) (*domain.FraudEventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM activity_log WHERE id = ?`

	rec, err := scanEvent(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFraudEventsByAgent returns the agent's most recent audit records, newest first.
func (r *SQLRepository) ListFraudEventsByAgent(ctx context.Context, agentID string, limit int) ([]*domain.FraudEventRecord, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agentID is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + `
		FROM activity_log
		WHERE agent_id = ?
		ORDER BY occurred_at DESC, id
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.FraudEventRecord, 0)
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListAgentActivity returns the agent's activity since the given time in
// chronological order.
func (r *SQLRepository) ListAgentActivity(ctx context.Context, agentID string, since time.Time) ([]domain.ActivityRecord, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agentID is required", ErrInvalidInput)
	}

	query := `
		SELECT event_id, agent_id, kind, occurred_at, latitude, longitude, accuracy, location_source, customer_id, risk_level
		FROM activity_log
		WHERE agent_id = ? AND occurred_at >= ?
		ORDER BY occurred_at ASC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), agentID, since.UTC().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivity(rows)
}

// ListActivityNear returns other agents' located activity within the
// radius and time window. The bounding box narrows the scan; the exact
// great-circle distance decides.
func (r *SQLRepository) ListActivityNear(ctx context.Context, q domain.ProximityQuery) ([]domain.ActivityRecord, error) {
	if q.RadiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrInvalidInput)
	}
	box := geo.BoundingBox(q.Center, q.RadiusMeters)

	query := `
		SELECT event_id, agent_id, kind, occurred_at, latitude, longitude, accuracy, location_source, customer_id, risk_level
		FROM activity_log
		WHERE occurred_at >= ? AND occurred_at <= ?
		  AND agent_id <> ?
		  AND latitude BETWEEN ? AND ?
		  AND longitude BETWEEN ? AND ?
		ORDER BY occurred_at ASC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query),
		q.From.UTC().UnixMilli(), q.To.UTC().UnixMilli(),
		q.ExcludeAgentID,
		box.MinLat, box.MaxLat,
		box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates, err := scanActivity(rows)
	if err != nil {
		return nil, err
	}

	out := candidates[:0]
	for _, a := range candidates {
		if a.Location != nil && geo.DistanceMeters(q.Center, a.Location.Coordinate) <= q.RadiusMeters {
			out = append(out, a)
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.FraudEventRecord, error) {
	var rec domain.FraudEventRecord
	var kind, level string
	var occurredAt int64
	var lat, lng, acc sql.NullFloat64
	var source, customer, amount, metadata sql.NullString
	var flags, recs, actions string
	var degraded int

	if err := row.Scan(
		&rec.ID, &rec.EventID, &rec.AgentID, &kind, &occurredAt,
		&lat, &lng, &acc, &source,
		&customer, &amount, &level, &rec.RiskScore,
		&flags, &recs, &actions, &degraded, &metadata, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.Kind = domain.ActivityKind(kind)
	rec.RiskLevel = domain.RiskLevel(level)
	rec.Timestamp = time.UnixMilli(occurredAt).UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.CustomerID = customer.String
	rec.Degraded = degraded == 1
	rec.Location = location(lat, lng, acc, source, rec.Timestamp)

	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("parse amount of %s: %w", rec.ID, err)
		}
		rec.Amount = &d
	}

	if err := json.Unmarshal([]byte(flags), &rec.Flags); err != nil {
		return nil, fmt.Errorf("parse flags of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(actions), &rec.Actions); err != nil {
		return nil, fmt.Errorf("parse actions of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(recs), &rec.Recommendations); err != nil {
		return nil, fmt.Errorf("parse recommendations of %s: %w", rec.ID, err)
	}
	if metadata.Valid {
		_ = json.Unmarshal([]byte(metadata.String), &rec.Metadata)
	}

	return &rec, nil
}

func scanActivity(rows *sql.Rows) ([]domain.ActivityRecord, error) {
	out := make([]domain.ActivityRecord, 0)
	for rows.Next() {
		var a domain.ActivityRecord
		var kind, level string
		var occurredAt int64
		var lat, lng, acc sql.NullFloat64
		var source, customer sql.NullString

		if err := rows.Scan(&a.EventID, &a.AgentID, &kind, &occurredAt, &lat, &lng, &acc, &source, &customer, &level); err != nil {
			return nil, err
		}

		a.Kind = domain.ActivityKind(kind)
		a.RiskLevel = domain.RiskLevel(level)
		a.Timestamp = time.UnixMilli(occurredAt).UTC()
		a.CustomerID = customer.String
		a.Location = location(lat, lng, acc, source, a.Timestamp)
		out = append(out, a)
	}
	return out, rows.Err()
}

func location(lat, lng, acc sql.NullFloat64, source sql.NullString, at time.Time) *domain.LocationSample {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &domain.LocationSample{
		Coordinate: domain.Coordinate{Latitude: lat.Float64, Longitude: lng.Float64},
		Accuracy:   acc.Float64,
		Timestamp:  at,
		Source:     domain.LocationSource(source.String),
	}
}
