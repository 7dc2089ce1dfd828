package db

import (
	"os"
	"testing"
	"time"

	"github.com/apontamentos/relay/domain"
	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("os.CreateTemp() failed: %v", err)
	}
	tempFile.Close()

	dbConn, err := New(tempFile.Name())
	if err != nil {
		t.Fatalf("db.New() failed: %v", err)
	}

	repo := NewRelayRepo(dbConn)

	teardown := func() {
		repo.Close()
		os.Remove(tempFile.Name())
	}

	return repo, teardown
}

func testRequest(t *testing.T, repo *Repository, metadata map[string]any) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}

	req := &domain.ForwardRequest{
		ID:          id,
		Method:      "GET",
		Upstream:    "http://localhost:8081",
		Path:        "/clientes",
		Raw:         []byte("GET /clientes HTTP/1.1\r\nHost: localhost:8081\r\nAccept: application/json\r\n\r\n"),
		Metadata:    metadata,
		RequestedAt: time.Now().UTC(),
	}

	err = repo.InsertRequest(req)
	if err != nil {
		t.Fatalf("inserting request: %v", err)
	}
	return id
}

func testResponse(t *testing.T, repo *Repository, reqID uuid.UUID, outcome string, statusCode int) *domain.ForwardResponse {
	t.Helper()

	resp := &domain.ForwardResponse{
		ID:          reqID,
		Status:      "200 OK",
		StatusCode:  statusCode,
		ContentType: "application/json",
		Length:      "2",
		Outcome:     outcome,
		Raw:         []byte("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 2\r\n\r\n[]"),
		Metadata:    map[string]any{"request_id": reqID.String()},
		RespondedAt: time.Now().UTC(),
	}

	if err := repo.InsertResponse(resp); err != nil {
		t.Fatalf("inserting response: %v", err)
	}
	return resp
}

func TestNew(t *testing.T) {
	t.Run("should apply migrations on a new database", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		var columns []string
		err := repo.dbConn.Select(&columns, `SELECT name FROM pragma_table_info('request')`)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		found := false
		for _, column := range columns {
			if column == "duration_ms" {
				found = true
			}
		}
		if !found {
			t.Fatalf("\nwanted:\nduration_ms column\ngot:\n%v", columns)
		}
	})

	t.Run("should reopen an existing database without reapplying migrations", func(t *testing.T) {
		path := t.TempDir() + "/relay.db"

		first, err := New(path)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		first.Close()

		second, err := New(path)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		second.Close()
	})
}
