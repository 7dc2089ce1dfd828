package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apontamentos/relay/domain"
	"github.com/google/uuid"
)

var _ domain.TrafficRepository = (*Repository)(nil)

var (
	// ErrExchangeNotFound is returned when no exchange exists for the given ID.
	ErrExchangeNotFound = domain.ErrExchangeNotFound
)

// dbExchange is one row of the request table. Response columns use sql.Null*
// types since they stay empty until the upstream answers.
type dbExchange struct {
	// Request
	ID          uuid.UUID `db:"id"`
	Method      string    `db:"method"`
	Upstream    string    `db:"upstream"`
	Path        string    `db:"path"`
	RequestRaw  []byte    `db:"request_raw"`
	RequestedAt time.Time `db:"requested_at"`

	// Response
	Status      sql.NullString `db:"status"`
	StatusCode  sql.NullInt64  `db:"status_code"`
	ContentType sql.NullString `db:"content_type"`
	Length      sql.NullString `db:"length"`
	Outcome     sql.NullString `db:"outcome"`
	ResponseRaw []byte         `db:"response_raw"`
	RespondedAt sql.NullTime   `db:"responded_at"`
	DurationMS  int64          `db:"duration_ms"`

	// Common
	Metadata Metadata `db:"metadata"`
}

// dbExchangeSummary is a row of the request table without the raw dumps and metadata.
type dbExchangeSummary struct {
	ID          uuid.UUID      `db:"id"`
	Method      string         `db:"method"`
	Upstream    string         `db:"upstream"`
	Path        string         `db:"path"`
	RequestedAt time.Time      `db:"requested_at"`
	Status      sql.NullString `db:"status"`
	StatusCode  sql.NullInt64  `db:"status_code"`
	ContentType sql.NullString `db:"content_type"`
	Length      sql.NullString `db:"length"`
	Outcome     sql.NullString `db:"outcome"`
	RespondedAt sql.NullTime   `db:"responded_at"`
	DurationMS  int64          `db:"duration_ms"`
}

// fromDomainForwardRequest converts a domain.ForwardRequest into a dbExchange for insertion.
func fromDomainForwardRequest(freq *domain.ForwardRequest) *dbExchange {
	return &dbExchange{
		ID:          freq.ID,
		Method:      freq.Method,
		Upstream:    freq.Upstream,
		Path:        freq.Path,
		RequestRaw:  freq.Raw,
		RequestedAt: freq.RequestedAt,
		Metadata:    Metadata(freq.Metadata),
	}
}

// fromDomainForwardResponse converts a domain.ForwardResponse into a dbExchange for the update.
func fromDomainForwardResponse(fres *domain.ForwardResponse) *dbExchange {
	return &dbExchange{
		ID: fres.ID,
		Status: sql.NullString{
			String: fres.Status,
			Valid:  fres.Status != "",
		},
		StatusCode: sql.NullInt64{
			Int64: int64(fres.StatusCode),
			Valid: fres.StatusCode > 0,
		},
		ContentType: sql.NullString{
			String: fres.ContentType,
			Valid:  fres.ContentType != "",
		},
		Length: sql.NullString{
			String: fres.Length,
			Valid:  fres.Length != "",
		},
		Outcome: sql.NullString{
			String: fres.Outcome,
			Valid:  fres.Outcome != "",
		},
		ResponseRaw: fres.Raw,
		RespondedAt: sql.NullTime{
			Time:  fres.RespondedAt,
			Valid: !fres.RespondedAt.IsZero(),
		},
		Metadata: Metadata(fres.Metadata),
	}
}

// toDomainExchange converts a dbExchange into a domain.Exchange.
func toDomainExchange(row *dbExchange) *domain.Exchange {
	exchange := &domain.Exchange{
		Request: domain.ForwardRequest{
			ID:          row.ID,
			Method:      row.Method,
			Upstream:    row.Upstream,
			Path:        row.Path,
			Raw:         row.RequestRaw,
			Metadata:    map[string]any(row.Metadata),
			RequestedAt: row.RequestedAt,
		},
		Response: domain.ForwardResponse{
			ID:       row.ID,
			Raw:      row.ResponseRaw,
			Metadata: map[string]any(row.Metadata),
		},
	}

	if row.Status.Valid {
		exchange.Response.Status = row.Status.String
	}
	if row.StatusCode.Valid {
		exchange.Response.StatusCode = int(row.StatusCode.Int64)
	}
	if row.ContentType.Valid {
		exchange.Response.ContentType = row.ContentType.String
	}
	if row.Length.Valid {
		exchange.Response.Length = row.Length.String
	}
	if row.Outcome.Valid {
		exchange.Response.Outcome = row.Outcome.String
	}
	if row.RespondedAt.Valid {
		exchange.Response.RespondedAt = row.RespondedAt.Time
	}
	return exchange
}

// toDomainExchangeSummary converts a dbExchangeSummary into a domain.ExchangeSummary.
func toDomainExchangeSummary(row *dbExchangeSummary) *domain.ExchangeSummary {
	summary := &domain.ExchangeSummary{
		ID:          row.ID,
		Method:      row.Method,
		Upstream:    row.Upstream,
		Path:        row.Path,
		DurationMS:  row.DurationMS,
		RequestedAt: row.RequestedAt,
	}

	if row.Status.Valid {
		summary.Status = row.Status.String
	}
	if row.StatusCode.Valid {
		summary.StatusCode = int(row.StatusCode.Int64)
	}
	if row.ContentType.Valid {
		summary.ContentType = row.ContentType.String
	}
	if row.Length.Valid {
		summary.Length = row.Length.String
	}
	if row.Outcome.Valid {
		summary.Outcome = row.Outcome.String
	}
	if row.RespondedAt.Valid {
		summary.RespondedAt = row.RespondedAt.Time
	}
	return summary
}

// InsertRequest inserts a new domain.ForwardRequest into the database.
func (repo *Repository) InsertRequest(req *domain.ForwardRequest) error {
	dbRequest := fromDomainForwardRequest(req)
	query := `INSERT INTO request(id, method, upstream, path, request_raw, requested_at, metadata)
			  VALUES(:id, :method, :upstream, :path, :request_raw, :requested_at, :metadata)`
	_, err := repo.dbConn.NamedExec(query, dbRequest)
	if err != nil {
		return fmt.Errorf("inserting request %s : %w", req.ID, err)
	}
	return nil
}

// InsertResponse updates an existing request row with the response details.
// The duration is derived from the stored requested_at so the caller does not need to carry it.
func (repo *Repository) InsertResponse(res *domain.ForwardResponse) error {
	var requestedAt time.Time
	err := repo.dbConn.Get(&requestedAt, `SELECT requested_at FROM request WHERE id = ?`, res.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("inserting response %s : %w", res.ID, ErrExchangeNotFound)
		}
		return fmt.Errorf("getting request time for %s : %w", res.ID, err)
	}

	dbResponse := fromDomainForwardResponse(res)
	if dbResponse.RespondedAt.Valid {
		if ms := res.RespondedAt.Sub(requestedAt).Milliseconds(); ms > 0 {
			dbResponse.DurationMS = ms
		}
	}

	query := `UPDATE request SET
				status = :status,
				status_code = :status_code,
				content_type = :content_type,
				length = :length,
				outcome = :outcome,
				response_raw = :response_raw,
				responded_at = :responded_at,
				duration_ms = :duration_ms,
				metadata = :metadata
			  WHERE id = :id`
	_, err = repo.dbConn.NamedExec(query, dbResponse)
	if err != nil {
		return fmt.Errorf("inserting response %s : %w", res.ID, err)
	}
	return nil
}

// GetExchange returns the full request / response pair for an ID.
func (repo *Repository) GetExchange(id uuid.UUID) (*domain.Exchange, error) {
	var row dbExchange
	query := `SELECT id, method, upstream, path, request_raw, requested_at,
					 status, status_code, content_type, length, outcome,
					 response_raw, responded_at, duration_ms, metadata
			  FROM request WHERE id = ?`

	err := repo.dbConn.Get(&row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("getting exchange %s : %w", id, ErrExchangeNotFound)
		}
		return nil, fmt.Errorf("getting exchange %s : %w", id, err)
	}
	return toDomainExchange(&row), nil
}

// GetSummaries returns the most recent exchanges, newest first.
// UUIDv7 IDs sort by creation time, so the ID doubles as the ordering key.
func (repo *Repository) GetSummaries(limit int) ([]*domain.ExchangeSummary, error) {
	var rows []*dbExchangeSummary
	query := `SELECT id, method, upstream, path, requested_at,
					 status, status_code, content_type, length, outcome,
					 responded_at, duration_ms
			  FROM request ORDER BY id DESC`

	var err error
	if limit > 0 {
		err = repo.dbConn.Select(&rows, query+` LIMIT ?`, limit)
	} else {
		err = repo.dbConn.Select(&rows, query)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting exchange summaries : %w", err)
	}

	summaries := make([]*domain.ExchangeSummary, len(rows))
	for i, row := range rows {
		summaries[i] = toDomainExchangeSummary(row)
	}
	return summaries, nil
}
