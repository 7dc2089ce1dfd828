package db

import (
	"fmt"

	"github.com/apontamentos/relay/domain"
)

var _ domain.StatsRepository = (*Repository)(nil)

// GetStats counts the recorded exchanges by outcome along with the persisted logs.
func (repo *Repository) GetStats() (*domain.Stats, error) {
	var row struct {
		Exchanges  int `db:"exchanges"`
		Failed     int `db:"failed"`
		Redirected int `db:"redirected"`
		Pending    int `db:"pending"`
	}
	query := `SELECT COUNT(*) AS exchanges,
				COALESCE(SUM(CASE WHEN outcome IN ('network', 'timeout', 'invalid_json', 'bad_request') THEN 1 ELSE 0 END), 0) AS failed,
				COALESCE(SUM(CASE WHEN outcome = 'redirect' THEN 1 ELSE 0 END), 0) AS redirected,
				COALESCE(SUM(CASE WHEN outcome IS NULL THEN 1 ELSE 0 END), 0) AS pending
			  FROM request`

	err := repo.dbConn.Get(&row, query)
	if err != nil {
		return nil, fmt.Errorf("getting exchange counts: %w", err)
	}

	var logs int
	err = repo.dbConn.Get(&logs, `SELECT COUNT(*) FROM logs`)
	if err != nil {
		return nil, fmt.Errorf("getting log count: %w", err)
	}

	return &domain.Stats{
		Exchanges:  row.Exchanges,
		Failed:     row.Failed,
		Redirected: row.Redirected,
		Pending:    row.Pending,
		Logs:       logs,
	}, nil
}
