package db

import (
	"context"
	"fmt"
	"strings"
)

// vectorDimensions is baked into the Article model's column type. Changing
// EMBEDDING_DIMENSIONS requires a schema rebuild, so a mismatch is refused
// here instead of silently migrating.
const vectorDimensions = 384

// One statement per entry: the pgx extended protocol rejects multi-statement
// strings.
var preAutoMigrateSQL = []string{
	"CREATE EXTENSION IF NOT EXISTS vector",
	"CREATE SCHEMA IF NOT EXISTS news",
}

func (p *Pool) autoMigrate(ctx context.Context, dimensions, indexLists int) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if dimensions != vectorDimensions {
		return fmt.Errorf("EMBEDDING_DIMENSIONS=%d does not match the vector(%d) schema; rebuild the articles table and index first", dimensions, vectorDimensions)
	}

	for _, statement := range preAutoMigrateSQL {
		if err := executeMigrationSQL(ctx, p, "pre-auto-migrate", statement); err != nil {
			return err
		}
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	// The ivfflat index is maintenance state, rebuildable from the table.
	// Changing the list count means dropping and recreating it.
	indexSQL := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS articles_embedding_idx ON news.articles USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);",
		indexLists,
	)
	if err := executeMigrationSQL(ctx, p, "embedding-index", indexSQL); err != nil {
		return err
	}

	return nil
}

func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute %s SQL: %w", label, err)
	}
	return nil
}
