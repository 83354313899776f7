package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/JakeFAU/metadata-scraper/internal/entity"
)

// CatalogStore implements store.CatalogRepository. Each entity is one row
// keyed by name; fields are stored as JSONB in their serialized form.
type CatalogStore struct {
	pool  Pool
	table string
}

// NewCatalogStore builds a CatalogStore. An empty table defaults to entities.
func NewCatalogStore(pool Pool, table string) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, "entities")
	if err != nil {
		return nil, err
	}
	return &CatalogStore{pool: pool, table: name}, nil
}

// UpsertEntities writes m in one transaction, in name order.
func (s *CatalogStore) UpsertEntities(ctx context.Context, runID uuid.UUID, m entity.Map) (n int, err error) {
	if len(m) == 0 {
		return 0, nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin entity upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (name, short_description, url, parent, fields, run_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE
		SET short_description = EXCLUDED.short_description,
			url = EXCLUDED.url,
			parent = EXCLUDED.parent,
			fields = EXCLUDED.fields,
			run_id = EXCLUDED.run_id;
	`, s.table)
	for _, name := range names {
		entry := m[name]
		fields := entry.Fields
		if fields == nil {
			fields = []entity.Field{}
		}
		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return n, fmt.Errorf("marshal fields of %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, query, name, entry.ShortDescription, entry.URL, entry.ParentType(), fieldsJSON, runID); err != nil {
			return n, fmt.Errorf("upsert entity %s: %w", name, err)
		}
		n++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit entity upsert: %w", err)
	}
	return n, nil
}
