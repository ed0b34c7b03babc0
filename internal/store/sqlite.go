package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/coterie-labs/experiment-console/internal/model"
)

// Namespace is the fixed key the experiment map is stored under, carried
// over from the browser cache this tier replaces.
const Namespace = "coterie_experiments"

// SQLiteTier is the durable local cache. It mirrors the original browser
// cache layout: one serialized blob per namespace holding a map from
// experiment id to experiment, read and rewritten whole on each mutation.
type SQLiteTier struct {
	db        *sql.DB
	namespace string
}

// NewSQLite opens (or creates) the cache database at dsn and configures WAL
// mode for concurrent readers.
func NewSQLite(dsn string) (*SQLiteTier, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	t := &SQLiteTier{db: db, namespace: Namespace}
	if err := t.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func (t *SQLiteTier) migrate() error {
	_, err := t.db.Exec(`
CREATE TABLE IF NOT EXISTS cache_blobs (
	namespace  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);`)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the underlying database.
func (t *SQLiteTier) Close() error {
	return t.db.Close()
}

func (t *SQLiteTier) Name() string { return "sqlite" }

func (t *SQLiteTier) load(ctx context.Context) (map[string]model.Experiment, error) {
	var payload string
	err := t.db.QueryRowContext(ctx,
		`SELECT payload FROM cache_blobs WHERE namespace = ?`, t.namespace,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]model.Experiment{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load blob")
	}

	exps := make(map[string]model.Experiment)
	if err := json.Unmarshal([]byte(payload), &exps); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal blob")
	}
	return exps, nil
}

func (t *SQLiteTier) save(ctx context.Context, exps map[string]model.Experiment) error {
	payload, err := json.Marshal(exps)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal blob")
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO cache_blobs (namespace, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (namespace) DO UPDATE SET payload = ?, updated_at = ?`,
		t.namespace, string(payload), time.Now().UTC(),
		string(payload), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save blob")
}

func (t *SQLiteTier) Get(ctx context.Context, id string) (*model.Experiment, error) {
	exps, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	exp, ok := exps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &exp, nil
}

func (t *SQLiteTier) GetAll(ctx context.Context) ([]model.Experiment, error) {
	exps, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Experiment, 0, len(exps))
	for _, exp := range exps {
		out = append(out, exp)
	}
	return out, nil
}

func (t *SQLiteTier) Put(ctx context.Context, exp model.Experiment) error {
	exps, err := t.load(ctx)
	if err != nil {
		return err
	}
	exps[exp.ID] = exp
	return t.save(ctx, exps)
}

func (t *SQLiteTier) Delete(ctx context.Context, id string) error {
	exps, err := t.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := exps[id]; !ok {
		return nil
	}
	delete(exps, id)
	return t.save(ctx, exps)
}
