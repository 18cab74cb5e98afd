/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package sqlite implements datastore.Adapter on SQLite using modernc.org/sqlite.
//
// Each entity type lives in one table holding the document as JSON:
//
//	CREATE TABLE "<table>" (id TEXT PRIMARY KEY, data TEXT NOT NULL)
//
// Predicates compile to json_extract/json_type expressions, so filtering,
// sorting and paging run inside SQLite. Updates are read-modify-write inside
// a transaction. A *sql.Tx passed in Options.Tx is used instead of the pool,
// letting callers group several operations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Option configures an Adapter.
type Option func(*Adapter)

// WithTable overrides the table name, which defaults to the entity name.
func WithTable(name string) Option {
	return func(a *Adapter) {
		a.table = name
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// conn is satisfied by *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Adapter stores documents in a SQLite table.
type Adapter struct {
	db     *sql.DB
	owned  bool
	table  string
	kind   string
	logger *slog.Logger
}

var _ datastore.Adapter = (*Adapter)(nil)

// Open opens (creating if needed) the database at path. Parent directories
// are created. The table itself is created by Init.
func Open(path string, opts ...Option) (*Adapter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	a := NewWithDB(db, opts...)
	a.owned = true
	a.logger.Info("SQLite adapter opened", "path", path)
	return a, nil
}

// NewWithDB uses an existing database handle. Close does not close it.
func NewWithDB(db *sql.DB, opts ...Option) *Adapter {
	a := &Adapter{db: db}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default().With("component", "sqlite")
	}
	return a
}

// DB returns the underlying handle, for example to begin a transaction
// passed back through Options.Tx.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// Table returns the table name, known after Init.
func (a *Adapter) Table() string {
	return a.table
}

// Init creates the entity table if it does not exist.
func (a *Adapter) Init(ctx context.Context, s datastore.Schema) error {
	a.kind = s.Name()
	if a.table == "" {
		a.table = strings.NewReplacer("-", "_", ".", "_").Replace(s.Name())
	}
	if !tableName.MatchString(a.table) {
		return fmt.Errorf("sqlite: invalid table name %q", a.table)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`, a.table)
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", a.table, err)
	}
	a.logger.Info("SQLite table ready", "entity", a.kind, "table", a.table)
	return nil
}

// Close closes the database when the adapter opened it.
func (a *Adapter) Close() error {
	if !a.owned {
		return nil
	}
	return a.db.Close()
}

func (a *Adapter) conn(opts storagemodels.Options) conn {
	if tx, ok := opts.Tx.(*sql.Tx); ok && tx != nil {
		return tx
	}
	return a.db
}

// inTx runs fn in the caller's transaction, or in a new one committed on success.
func (a *Adapter) inTx(ctx context.Context, opts storagemodels.Options, fn func(conn) error) error {
	if tx, ok := opts.Tx.(*sql.Tx); ok && tx != nil {
		return fn(tx)
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (a *Adapter) insert(ctx context.Context, c conn, doc storagemodels.Document) (storagemodels.Document, error) {
	out := doc.Clone()
	if out == nil {
		out = storagemodels.Document{}
	}
	if err := datastore.AssignID(out, uuid.NewString); err != nil {
		return nil, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}

	stmt := fmt.Sprintf("INSERT INTO %q (id, data) VALUES (?, ?)", a.table)
	if _, err := c.ExecContext(ctx, stmt, out.ID(), string(data)); err != nil {
		if isUniqueConstraintError(err) {
			return nil, errors.NewAlreadyExistsError(a.kind, out.ID())
		}
		return nil, fmt.Errorf("inserting %s: %w", out.ID(), err)
	}
	return out, nil
}

func (a *Adapter) InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error) {
	return a.insert(ctx, a.conn(opts), doc)
}

// InsertMany inserts all documents in one transaction.
func (a *Adapter) InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error) {
	out := make([]storagemodels.Document, 0, len(docs))
	err := a.inTx(ctx, opts, func(c conn) error {
		for _, d := range docs {
			inserted, err := a.insert(ctx, c, d)
			if err != nil {
				return err
			}
			out = append(out, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) UpdateByID(ctx context.Context, id string, u storagemodels.Update, opts storagemodels.Options) (storagemodels.Document, error) {
	var updated storagemodels.Document
	err := a.inTx(ctx, opts, func(c conn) error {
		doc, err := a.get(ctx, c, id)
		if err != nil || doc == nil {
			return err
		}
		if err := datastore.ApplyUpdate(doc, u); err != nil {
			return err
		}
		if err := a.replace(ctx, c, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (a *Adapter) UpdateMany(ctx context.Context, q *query.Query, u storagemodels.Update, opts storagemodels.Options) (int64, error) {
	var n int64
	err := a.inTx(ctx, opts, func(c conn) error {
		docs, err := a.selectDocs(ctx, c, q, false)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := datastore.ApplyUpdate(doc, u); err != nil {
				return err
			}
			if err := a.replace(ctx, c, doc); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (a *Adapter) DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error) {
	stmt := fmt.Sprintf("DELETE FROM %q WHERE id = ?", a.table)
	res, err := a.conn(opts).ExecContext(ctx, stmt, id)
	if err != nil {
		return "", fmt.Errorf("deleting %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("deleting %s: %w", id, err)
	}
	if n == 0 {
		return "", nil
	}
	return id, nil
}

func (a *Adapter) DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	stmt := fmt.Sprintf("DELETE FROM %q WHERE id IN (%s) RETURNING id", a.table, placeholders(len(ids)))
	rows, err := a.conn(opts).QueryContext(ctx, stmt, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("deleting by ids: %w", err)
	}
	defer rows.Close()

	deleted := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning deleted id: %w", err)
		}
		deleted[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deleting by ids: %w", err)
	}

	out := make([]string, 0, len(deleted))
	for _, id := range ids {
		if deleted[id] {
			out = append(out, id)
			delete(deleted, id)
		}
	}
	return out, nil
}

// DeleteMany ignores $limit and $offset.
func (a *Adapter) DeleteMany(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	w := &where{}
	cond, err := w.predicate(predicate(q))
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("DELETE FROM %q WHERE %s", a.table, cond)
	res, err := a.conn(opts).ExecContext(ctx, stmt, w.args...)
	if err != nil {
		return 0, fmt.Errorf("deleting by filter: %w", err)
	}
	return res.RowsAffected()
}

func (a *Adapter) FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error) {
	return a.get(ctx, a.conn(opts), id)
}

func (a *Adapter) FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error) {
	if len(ids) == 0 {
		return []storagemodels.Document{}, nil
	}
	stmt := fmt.Sprintf("SELECT data FROM %q WHERE id IN (%s)", a.table, placeholders(len(ids)))
	docs, err := a.scan(ctx, a.conn(opts), stmt, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]storagemodels.Document, len(docs))
	for _, d := range docs {
		byID[d.ID()] = d
	}
	out := make([]storagemodels.Document, 0, len(docs))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
			delete(byID, id)
		}
	}
	return out, nil
}

func (a *Adapter) FindOne(ctx context.Context, q *query.Query, opts storagemodels.Options) (storagemodels.Document, error) {
	one := 1
	limited := query.All()
	if q != nil {
		*limited = *q
	}
	limited.Filters.Limit = &one

	docs, err := a.Find(ctx, limited, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (a *Adapter) Find(ctx context.Context, q *query.Query, opts storagemodels.Options) ([]storagemodels.Document, error) {
	docs, err := a.selectDocs(ctx, a.conn(opts), q, true)
	if err != nil {
		return nil, err
	}
	if q != nil {
		if fields := q.Filters.Fields(); len(fields) > 0 {
			for i, d := range docs {
				docs[i] = query.Project(d, fields)
			}
		}
	}
	return docs, nil
}

// Count ignores $limit and $offset.
func (a *Adapter) Count(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	w := &where{}
	cond, err := w.predicate(predicate(q))
	if err != nil {
		return 0, err
	}
	var n int64
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %q WHERE %s", a.table, cond)
	if err := a.conn(opts).QueryRowContext(ctx, stmt, w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

func (a *Adapter) selectDocs(ctx context.Context, c conn, q *query.Query, paged bool) ([]storagemodels.Document, error) {
	w := &where{}
	cond, err := w.predicate(predicate(q))
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT data FROM %q WHERE %s", a.table, cond)
	if paged && q != nil {
		order, err := w.orderBy(q.Filters.SortFields())
		if err != nil {
			return nil, err
		}
		stmt += order + w.page(q.Filters)
	}
	return a.scan(ctx, c, stmt, w.args...)
}

func (a *Adapter) get(ctx context.Context, c conn, id string) (storagemodels.Document, error) {
	var data string
	stmt := fmt.Sprintf("SELECT data FROM %q WHERE id = ?", a.table)
	err := c.QueryRowContext(ctx, stmt, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", id, err)
	}
	return decode(data)
}

func (a *Adapter) replace(ctx context.Context, c conn, doc storagemodels.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	stmt := fmt.Sprintf("UPDATE %q SET data = ? WHERE id = ?", a.table)
	if _, err := c.ExecContext(ctx, stmt, string(data), doc.ID()); err != nil {
		return fmt.Errorf("updating %s: %w", doc.ID(), err)
	}
	return nil
}

func (a *Adapter) scan(ctx context.Context, c conn, stmt string, args ...any) ([]storagemodels.Document, error) {
	rows, err := c.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", a.table, err)
	}
	defer rows.Close()

	out := make([]storagemodels.Document, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		doc, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func decode(data string) (storagemodels.Document, error) {
	var doc storagemodels.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

func predicate(q *query.Query) storagemodels.Filter {
	if q == nil {
		return nil
	}
	return q.Predicate
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "constraint failed: UNIQUE"))
}
