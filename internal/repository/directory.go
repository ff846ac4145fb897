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

// SaveCustomer creates or replaces a customer directory entry.
func (r *SQLRepository) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var lat, lng sql.NullFloat64
	if c.Location != nil {
		lat = sql.NullFloat64{Float64: c.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: c.Location.Longitude, Valid: true}
	}

	query := `
		INSERT INTO customers (id, name, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), c.ID, c.Name, lat, lng, c.CreatedAt.UTC())
	return err
}

// CustomerExists reports whether the directory knows the customer.
func (r *SQLRepository) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	var n int
	query := `SELECT COUNT(1) FROM customers WHERE id = ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), customerID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveTerritory assigns or replaces an agent's geofence.
func (r *SQLRepository) SaveTerritory(ctx context.Context, t *domain.Territory) error {
	if t == nil || t.AgentID == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	if len(t.Polygon) < 3 {
		return fmt.Errorf("%w: territory needs at least 3 vertices", ErrInvalidInput)
	}
	polygon, err := json.Marshal(t.Polygon)
	if err != nil {
		return fmt.Errorf("encode polygon: %w", err)
	}
	t.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO territories (agent_id, polygon, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET
			polygon = excluded.polygon,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), t.AgentID, string(polygon), t.UpdatedAt)
	return err
}

// GetTerritory retrieves an agent's geofence.
func (r *SQLRepository) GetTerritory(ctx context.Context, agentID string) (*domain.Territory, error) {
	var t domain.Territory
	var polygon string

	query := `SELECT agent_id, polygon, updated_at FROM territories WHERE agent_id = ?`
	err := r.db.QueryRowContext(ctx, r.rebind(query), agentID).Scan(&t.AgentID, &polygon, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(polygon), &t.Polygon); err != nil {
		return nil, fmt.Errorf("parse polygon of %s: %w", agentID, err)
	}
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// SaveRuleConfig creates or updates a custom detection rule.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: rule id and expression are required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO rule_configs (id, name, description, expression, category, severity, confidence, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			category = excluded.category,
			severity = excluded.severity,
			confidence = excluded.confidence,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		string(rule.Category), string(rule.Severity), rule.Confidence,
		boolToInt(rule.Enabled), rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListRuleConfigs returns every stored rule, enabled or not, ordered by ID.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, expression, category, severity, confidence, enabled, created_at, updated_at
		FROM rule_configs
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]*domain.RuleConfig, 0)
	for rows.Next() {
		var rule domain.RuleConfig
		var description sql.NullString
		var category, severity string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Expression,
			&category, &severity, &rule.Confidence, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Description = description.String
		rule.Category = domain.Category(category)
		rule.Severity = domain.Severity(severity)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

var _ domain.Repository = (*SQLRepository)(nil)
