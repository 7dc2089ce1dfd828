package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

func init() {
	goose.AddMigrationContext(upAddDuration, downAddDuration)
}

// upAddDuration adds the duration_ms column and backfills it for exchanges that already have a response.
func upAddDuration(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE request ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0`)
	if err != nil {
		return fmt.Errorf("adding duration_ms column : %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, requested_at, responded_at FROM request WHERE responded_at IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("getting answered rows : %w", err)
	}
	defer rows.Close()

	durations := make(map[string]int64)
	for rows.Next() {
		var id string
		var requestedAt time.Time
		var respondedAt sql.NullTime
		if err := rows.Scan(&id, &requestedAt, &respondedAt); err != nil {
			return fmt.Errorf("scanning row : %w", err)
		}
		if !respondedAt.Valid {
			continue
		}
		durations[id] = respondedAt.Time.Sub(requestedAt).Milliseconds()
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows : %w", err)
	}

	for id, ms := range durations {
		if ms < 0 {
			ms = 0
		}
		_, err := tx.ExecContext(ctx, `UPDATE request SET duration_ms = ? WHERE id = ?`, ms, id)
		if err != nil {
			return fmt.Errorf("updating duration for row %s : %w", id, err)
		}
	}
	return nil
}

func downAddDuration(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE request DROP COLUMN duration_ms`); err != nil {
		return fmt.Errorf("dropping duration_ms column : %w", err)
	}
	return nil
}
