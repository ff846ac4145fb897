package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

// schemaActivityLog is the append-only fraud-event log. It is also the
// source of every agent's location and activity history, so event time is
// stored as unix milliseconds to keep range scans exact on both drivers.
const schemaActivityLog = `
CREATE TABLE IF NOT EXISTS activity_log (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    occurred_at BIGINT NOT NULL,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    accuracy DOUBLE PRECISION,
    location_source TEXT,
    customer_id TEXT,
    amount TEXT,
    risk_level TEXT NOT NULL,
    risk_score DOUBLE PRECISION NOT NULL,
    flags TEXT NOT NULL,
    recommendations TEXT NOT NULL,
    actions TEXT NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_agent_time ON activity_log(agent_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_activity_time_geo ON activity_log(occurred_at, latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_activity_event ON activity_log(event_id);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS behavior_profiles (
    agent_id TEXT PRIMARY KEY,
    avg_visit_duration DOUBLE PRECISION NOT NULL,
    work_start_hour INTEGER NOT NULL,
    work_end_hour INTEGER NOT NULL,
    avg_visits_per_day DOUBLE PRECISION NOT NULL,
    avg_sale_amount DOUBLE PRECISION NOT NULL,
    common_locations TEXT NOT NULL,
    avg_photo_quality DOUBLE PRECISION NOT NULL,
    suspicious_count INTEGER NOT NULL DEFAULT 0,
    timezone TEXT NOT NULL,
    visits_today INTEGER NOT NULL DEFAULT 0,
    visits_day TEXT NOT NULL DEFAULT '',
    last_updated TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    created_at TIMESTAMP NOT NULL
);
`

const schemaTerritories = `
CREATE TABLE IF NOT EXISTS territories (
    agent_id TEXT PRIMARY KEY,
    polygon TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    category TEXT NOT NULL,
    severity TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaActivityLog,
		schemaProfiles,
		schemaCustomers,
		schemaTerritories,
		schemaRuleConfigs,
	}
}
