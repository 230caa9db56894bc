package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/growthsignal/leadscout/internal/leadgen"
)

func TestPushLeadsInsertsBatchAndRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock)
	require.NoError(t, err)

	leads := []leadgen.Lead{
		{
			Name: "Mercy Clinic", Sector: "Healthcare", Keyword: "clinic",
			City: "Austin", Phone: "N/A", Email: "N/A", Website: "N/A",
			Address: "100 Main St", Rating: 4.5, ReviewCount: 12,
			MapsURL: "https://maps.example/a", Category: "Clinic",
			SearchQuery: "clinics in Austin",
		},
		{
			Name: "Harbor Dental", Sector: "Healthcare", Keyword: "clinic",
			City: "Austin", Phone: "555-0100", Email: "hi@harbor.example",
			Website: "https://harbor.example", Address: "2 Pier Rd",
			Rating: 0, ReviewCount: 0, MapsURL: "N/A", Category: "Dentist",
			SearchQuery: "clinics in Austin",
		},
	}

	mock.ExpectExec("INSERT INTO lead_batches").
		WithArgs("run-1", 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for i, l := range leads {
		mock.ExpectExec("INSERT INTO leads").
			WithArgs(
				"run-1", i, l.Name, l.Sector, l.Keyword, l.City, l.Phone,
				l.Email, l.Website, l.Address, l.Rating, l.ReviewCount,
				l.MapsURL, l.Category, l.SearchQuery,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, sink.PushLeads(context.Background(), "run-1", leads))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPushLeadsEmptySetStillMarksBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO lead_batches").
		WithArgs("run-2", 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.PushLeads(context.Background(), "run-2", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPushErrorInsertsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	runErr := leadgen.RunError{
		RunID:      "run-3",
		Stage:      "guard",
		Message:    "insufficient credits",
		OccurredAt: now,
	}

	mock.ExpectExec("INSERT INTO run_errors").
		WithArgs("run-3", "guard", "insufficient credits", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.PushError(context.Background(), runErr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadsReadsBackInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT lead_count FROM lead_batches").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"lead_count"}).AddRow(1))
	mock.ExpectQuery("SELECT name, sector, keyword").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"name", "sector", "keyword", "city", "phone", "email", "website",
			"address", "rating", "review_count", "maps_url", "category",
			"search_query",
		}).AddRow(
			"Mercy Clinic", "Healthcare", "clinic", "Austin", "N/A", "N/A",
			"N/A", "100 Main St", 4.5, 12, "https://maps.example/a", "Clinic",
			"clinics in Austin",
		))

	leads, ok, err := sink.Leads(context.Background(), "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, leads, 1)
	require.Equal(t, "Mercy Clinic", leads[0].Name)
	require.Equal(t, 4.5, leads[0].Rating)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadsWithoutBatchReportsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT lead_count FROM lead_batches").
		WithArgs("run-9").
		WillReturnRows(pgxmock.NewRows([]string{"lead_count"}))

	_, ok, err := sink.Leads(context.Background(), "run-9")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorReadsBackRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewSinkWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT stage, message, occurred_at FROM run_errors").
		WithArgs("run-3").
		WillReturnRows(pgxmock.NewRows([]string{"stage", "message", "occurred_at"}).
			AddRow("crawl", "actor start rejected", now))

	runErr, ok, err := sink.Error(context.Background(), "run-3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, leadgen.RunError{
		RunID: "run-3", Stage: "crawl", Message: "actor start rejected", OccurredAt: now,
	}, runErr)
	require.NoError(t, mock.ExpectationsWereMet())
}
