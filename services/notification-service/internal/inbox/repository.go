package inbox

import (
	"context"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record stores eventID once. It returns false when the event was seen before.
func (r *Repository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if _, dup := db.UniqueViolation(err); dup {
		return false, nil
	}
	return false, err
}
