package migrate

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// ApplySQLiteSchema creates the tables used by local sqlite runs and repository tests.
// The goose migrations stay Postgres-only.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}

// Local brings a development database up to date. sqlite gets the embedded
// schema and reports no versions; Postgres runs every pending goose migration.
func Local(ctx context.Context, conn *gorm.DB, sqlite bool) ([]int64, error) {
	if sqlite {
		return nil, ApplySQLiteSchema(ctx, conn)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, nil)
	if err != nil {
		return nil, err
	}
	return runner.Up(ctx)
}
