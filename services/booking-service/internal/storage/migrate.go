package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the booking tables and indexes. It is idempotent.
func Migrate(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply booking schema: %w", err)
	}
	return nil
}
