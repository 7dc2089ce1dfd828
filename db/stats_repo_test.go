package db

import (
	"testing"
	"time"

	"github.com/apontamentos/relay/domain"
	"github.com/google/uuid"
)

func TestStatsRepo_GetStats(t *testing.T) {
	t.Run("should return zeroes on an empty database", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.GetStats()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		want := domain.Stats{}
		if *got != want {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", want, *got)
		}
	})

	t.Run("should count exchanges by outcome", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testResponse(t, repo, testRequest(t, repo, nil), "ok", 200)
		testResponse(t, repo, testRequest(t, repo, nil), "no_content", 204)
		testResponse(t, repo, testRequest(t, repo, nil), "redirect", 401)
		testResponse(t, repo, testRequest(t, repo, nil), "network", 500)
		testResponse(t, repo, testRequest(t, repo, nil), "invalid_json", 500)
		testRequest(t, repo, nil)

		err := repo.InsertLog(&domain.Log{
			ID:        uuid.MustParse("00000000-0000-0000-0000-000000000001"),
			Timestamp: time.Now(),
			Level:     "WARN",
			Message:   "upstream redirected",
		})
		if err != nil {
			t.Fatalf("inserting log: %v", err)
		}

		got, err := repo.GetStats()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		want := domain.Stats{
			Exchanges:  6,
			Failed:     2,
			Redirected: 1,
			Pending:    1,
			Logs:       1,
		}
		if *got != want {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", want, *got)
		}
	})
}
