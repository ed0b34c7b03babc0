package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/coterie-labs/experiment-console/internal/model"
)

// Pool is the subset of pgxpool.Pool the Postgres tier uses. pgxmock
// satisfies it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresTier implements Tier against the remote relational store.
type PostgresTier struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects to the remote store and verifies reachability.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresTier, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresTier{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS experiments (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL,
	description            TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL DEFAULT 'draft',
	targeting              JSONB NOT NULL,
	variations             JSONB NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at           TIMESTAMPTZ,
	external_id            TEXT,
	external_layer         TEXT,
	imported_from_external BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);
CREATE INDEX IF NOT EXISTS idx_experiments_external_id ON experiments(external_id);
CREATE INDEX IF NOT EXISTS idx_experiments_updated_at ON experiments(updated_at DESC);
`

const experimentColumns = `id, name, description, status, targeting, variations,
	created_at, updated_at, published_at, external_id, external_layer, imported_from_external`

// Migrate creates the experiments table and indexes.
func (t *PostgresTier) Migrate(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping verifies the remote store is reachable.
func (t *PostgresTier) Ping(ctx context.Context) error {
	return eris.Wrap(t.pool.Ping(ctx), "postgres: ping")
}

// Close releases the connection pool.
func (t *PostgresTier) Close() error {
	t.pool.Close()
	return nil
}

func (t *PostgresTier) Name() string { return "postgres" }

func (t *PostgresTier) Get(ctx context.Context, id string) (*model.Experiment, error) {
	row := t.pool.QueryRow(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = $1`,
		id,
	)
	exp, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get experiment %s", id)
	}
	return exp, nil
}

func (t *PostgresTier) GetAll(ctx context.Context) ([]model.Experiment, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list experiments")
	}
	defer rows.Close()

	var exps []model.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan experiment")
		}
		exps = append(exps, *exp)
	}
	return exps, eris.Wrap(rows.Err(), "postgres: list experiments iterate")
}

func (t *PostgresTier) Put(ctx context.Context, exp model.Experiment) error {
	targetingJSON, err := json.Marshal(exp.Targeting)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal targeting")
	}
	variationsJSON, err := json.Marshal(exp.Variations)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal variations")
	}

	_, err = t.pool.Exec(ctx,
		`INSERT INTO experiments
		 (id, name, description, status, targeting, variations,
		  created_at, updated_at, published_at, external_id, external_layer, imported_from_external)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   name = $2, description = $3, status = $4, targeting = $5, variations = $6,
		   updated_at = $8, published_at = $9, external_id = $10, external_layer = $11,
		   imported_from_external = $12`,
		exp.ID, exp.Name, exp.Description, string(exp.Status),
		targetingJSON, variationsJSON,
		exp.CreatedAt, exp.UpdatedAt, exp.PublishedAt,
		nullable(exp.ExternalID), nullable(exp.ExternalLayerName), exp.ImportedFromExternal,
	)
	return eris.Wrapf(err, "postgres: put experiment %s", exp.ID)
}

func (t *PostgresTier) Delete(ctx context.Context, id string) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM experiments WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete experiment %s", id)
}

// nullable maps "" to NULL so the external_id index skips unpublished rows.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanExperiment(row pgx.Row) (*model.Experiment, error) {
	var (
		e              model.Experiment
		status         string
		targetingJSON  []byte
		variationsJSON []byte
		publishedAt    *time.Time
		externalID     *string
		externalLayer  *string
	)

	err := row.Scan(&e.ID, &e.Name, &e.Description, &status,
		&targetingJSON, &variationsJSON,
		&e.CreatedAt, &e.UpdatedAt, &publishedAt,
		&externalID, &externalLayer, &e.ImportedFromExternal)
	if err != nil {
		return nil, err
	}

	e.Status = model.Status(status)
	e.PublishedAt = publishedAt
	if externalID != nil {
		e.ExternalID = *externalID
	}
	if externalLayer != nil {
		e.ExternalLayerName = *externalLayer
	}
	if err := json.Unmarshal(targetingJSON, &e.Targeting); err != nil {
		return nil, eris.Wrap(err, "unmarshal targeting")
	}
	if err := json.Unmarshal(variationsJSON, &e.Variations); err != nil {
		return nil, eris.Wrap(err, "unmarshal variations")
	}
	return &e, nil
}
