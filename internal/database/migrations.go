package database

import (
	"fmt"
	"log"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// schemaVersionSQL creates the table that records applied migrations
const schemaVersionSQL = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)
`

// migrations contains all database migrations in order. Column types are
// chosen to work on both SQLite and PostgreSQL; timestamps are UTC text.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_surveys_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS surveys (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				survey_type TEXT NOT NULL,
				promoters_count INTEGER NOT NULL DEFAULT 0,
				passives_count INTEGER NOT NULL DEFAULT 0,
				detractors_count INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_surveys_created_at ON surveys(created_at);
		`,
	},
	{
		Version: 2,
		Name:    "create_survey_responses_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS survey_responses (
				id TEXT PRIMARY KEY,
				survey_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				customer_id TEXT NOT NULL DEFAULT '',
				overall_score DOUBLE PRECISION,
				is_complete INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_survey_responses_survey_id ON survey_responses(survey_id);
			CREATE INDEX IF NOT EXISTS idx_survey_responses_customer_id ON survey_responses(customer_id);
		`,
	},
	{
		Version: 3,
		Name:    "create_survey_answers_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS survey_answers (
				id TEXT PRIMARY KEY,
				response_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				question TEXT NOT NULL DEFAULT '',
				text_value TEXT NOT NULL DEFAULT '',
				rating_value INTEGER,
				FOREIGN KEY (response_id) REFERENCES survey_responses(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_survey_answers_response_id ON survey_answers(response_id);
		`,
	},
	{
		Version: 4,
		Name:    "create_health_scores_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS health_scores (
				id TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL,
				health_status TEXT NOT NULL,
				score DOUBLE PRECISION,
				created_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_health_scores_customer_created ON health_scores(customer_id, created_at);
		`,
	},
	{
		Version: 5,
		Name:    "create_survey_analyses_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS survey_analyses (
				id TEXT PRIMARY KEY,
				survey_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT '',
				nps_score INTEGER,
				urgent_issues_count INTEGER NOT NULL DEFAULT 0,
				churn_risk_count INTEGER NOT NULL DEFAULT 0,
				result TEXT NOT NULL,
				created_at TEXT NOT NULL,
				FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_survey_analyses_survey_created ON survey_analyses(survey_id, created_at);
		`,
	},
	{
		Version: 6,
		Name:    "add_enrichment_columns",
		SQL: `
			ALTER TABLE survey_analyses ADD COLUMN ai_summary TEXT NOT NULL DEFAULT '';
			ALTER TABLE survey_analyses ADD COLUMN ai_themes TEXT NOT NULL DEFAULT '';
			ALTER TABLE survey_analyses ADD COLUMN enriched_at TEXT;
		`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	log.Println("Creating schema_version table...")
	if _, err := db.conn.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	log.Printf("Current schema version: %d", currentVersion)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		log.Printf("Applying migration %d: %s", migration.Version, migration.Name)
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(db.rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"),
			migration.Version, formatTime(nowUTC())); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	log.Println("All migrations complete")
	return nil
}

// SchemaVersion returns the highest applied migration
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
