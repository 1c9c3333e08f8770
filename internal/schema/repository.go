// Package schema introspects the transactions database so that prompts and
// API clients can see which tables and columns exist. Lookups are served from
// a short-lived cache because the schema changes rarely but is read on every
// chat turn.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

const (
	DefaultCacheTTL = 5 * time.Minute

	cacheKeyTables = "tables"
)

type Repository struct {
	db    *sql.DB
	cache *gocache.Cache
}

func NewRepository(db *sql.DB, cacheTTL time.Duration) *Repository {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Repository{
		db:    db,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Tables returns every base table in the public schema with its columns in
// ordinal order. Results are cached for the configured TTL.
func (r *Repository) Tables(ctx context.Context) ([]Table, error) {
	if cached, ok := r.cache.Get(cacheKeyTables); ok {
		if tables, ok := cached.([]Table); ok {
			return tables, nil
		}
	}

	tables, err := r.loadTables(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(cacheKeyTables, tables)
	return tables, nil
}

// Invalidate drops the cached table listing so the next lookup hits the
// database.
func (r *Repository) Invalidate() {
	r.cache.Delete(cacheKeyTables)
}

func (r *Repository) loadTables(ctx context.Context) ([]Table, error) {
	const query = `
SELECT t.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.tables t
JOIN information_schema.columns c
  ON c.table_schema = t.table_schema AND c.table_name = t.table_name
WHERE t.table_schema = 'public' AND t.table_type = 'BASE TABLE'
ORDER BY t.table_name, c.ordinal_position`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query information_schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []Table
	byName := map[string]int{}
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		idx, ok := byName[tableName]
		if !ok {
			tables = append(tables, Table{Name: tableName})
			idx = len(tables) - 1
			byName[tableName] = idx
		}
		tables[idx].Columns = append(tables[idx].Columns, Column{
			Name:     columnName,
			DataType: dataType,
			Nullable: isNullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	return tables, nil
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
