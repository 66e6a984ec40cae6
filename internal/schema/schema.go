// Package schema creates the relational tables shared by the batch runner and the API.
package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
)

var tableName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const baseSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                %ID%,
	job_type          VARCHAR(64) NOT NULL,
	user_id           BIGINT NOT NULL DEFAULT 0,
	arg_id            BIGINT NOT NULL DEFAULT 0,
	priority          INTEGER NOT NULL DEFAULT 10,
	is_executing      BOOLEAN NOT NULL DEFAULT FALSE,
	is_executed       BOOLEAN NOT NULL DEFAULT FALSE,
	is_error          BOOLEAN NOT NULL DEFAULT FALSE,
	is_timeout        BOOLEAN NOT NULL DEFAULT FALSE,
	is_test_job       BOOLEAN NOT NULL DEFAULT FALSE,
	is_recent         BOOLEAN NOT NULL DEFAULT FALSE,
	execution_count   INTEGER NOT NULL DEFAULT 0,
	execution_started %TIME% NULL,
	executed_at       %TIME% NULL,
	created_at        %TIME% NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_runnable ON jobs (is_executed, is_executing, priority, id);
CREATE INDEX IF NOT EXISTS idx_jobs_type_executed ON jobs (job_type, is_executed, executed_at);
CREATE INDEX IF NOT EXISTS idx_jobs_group ON jobs (job_type, user_id, arg_id, is_recent);

CREATE TABLE IF NOT EXISTS users (
	id         %ID%,
	name       VARCHAR(255) NOT NULL DEFAULT '',
	email      VARCHAR(255) NOT NULL DEFAULT '',
	is_premium BOOLEAN NOT NULL DEFAULT FALSE,
	created_at %TIME% NOT NULL
);

CREATE TABLE IF NOT EXISTS finance_accounts (
	id      %ID%,
	user_id BIGINT NOT NULL,
	title   VARCHAR(255) NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS finance_categories (
	id      %ID%,
	user_id BIGINT NOT NULL,
	title   VARCHAR(255) NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transactions (
	id               %ID%,
	user_id          BIGINT NOT NULL,
	exchange         VARCHAR(64) NOT NULL,
	account_id       BIGINT NOT NULL DEFAULT 0,
	category_id      BIGINT NOT NULL DEFAULT 0,
	currency1        VARCHAR(8) NOT NULL,
	value1           NUMERIC(30, 8) NOT NULL,
	currency2        VARCHAR(8) NULL,
	value2           NUMERIC(30, 8) NULL,
	description      VARCHAR(255) NOT NULL DEFAULT '',
	reference        VARCHAR(255) NOT NULL DEFAULT '',
	is_automatic     BOOLEAN NOT NULL DEFAULT FALSE,
	transaction_date %TIME% NOT NULL,
	created_at       %TIME% NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions (user_id, transaction_date);

CREATE TABLE IF NOT EXISTS graph_pages (
	id         %ID%,
	user_id    BIGINT NOT NULL,
	title      VARCHAR(255) NOT NULL DEFAULT '',
	is_removed BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS graphs (
	id         %ID%,
	page_id    BIGINT NOT NULL,
	page_order INTEGER NOT NULL,
	graph_type VARCHAR(64) NOT NULL,
	width      INTEGER NOT NULL,
	height     INTEGER NOT NULL,
	is_removed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at %TIME% NOT NULL
);
`

// accountSchema is the shape every failure-tracked account table shares
const accountSchema = `
CREATE TABLE IF NOT EXISTS %TABLE% (
	id            %ID%,
	user_id       BIGINT NOT NULL,
	title         VARCHAR(255) NOT NULL DEFAULT '',
	address       VARCHAR(255) NULL,
	failures      INTEGER NOT NULL DEFAULT 0,
	first_failure %TIME% NULL,
	is_disabled   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    %TIME% NOT NULL
);
`

// dialect returns the id and timestamp column types for a driver
func dialect(driver string) (idType, timeType string, err error) {
	switch driver {
	case "postgres", "pgx":
		return "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ", nil
	case "sqlite3":
		// the sqlite driver only parses time values for these exact decltypes
		return "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP", nil
	default:
		return "", "", fmt.Errorf("unsupported schema driver: %s", driver)
	}
}

// Statements renders the DDL for a driver
func Statements(driver string, accountTables []string) ([]string, error) {
	idType, timeType, err := dialect(driver)
	if err != nil {
		return nil, err
	}

	ddl := baseSchema
	for _, table := range accountTables {
		if !tableName.MatchString(table) {
			return nil, fmt.Errorf("invalid account table name: %q", table)
		}
		ddl += strings.ReplaceAll(accountSchema, "%TABLE%", table)
	}

	ddl = strings.ReplaceAll(ddl, "%ID%", idType)
	ddl = strings.ReplaceAll(ddl, "%TIME%", timeType)

	var statements []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements, nil
}

// Apply creates all tables idempotently
func Apply(ctx context.Context, db *sqlx.DB, accountTables []string) error {
	statements, err := Statements(db.DriverName(), accountTables)
	if err != nil {
		return err
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
