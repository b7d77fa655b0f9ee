package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-assistant/internal/common/logger"
)

func eventRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "location", "city", "state", "event_date", "created_at",
	})
}

func TestEventStore_ListByCityAndDateWindow(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewEventStore(db, nil, logger.NewTestLogger(t))

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	mock.ExpectQuery(`FROM events WHERE city = \$1 AND event_date >= \$2 ORDER BY event_date ASC LIMIT \$3`).
		WithArgs("Austin", start, 25).
		WillReturnRows(eventRows().AddRow(
			"ev-1", "Trade Show", "Convention Center", "Austin", "TX", start.AddDate(0, 0, 10), now,
		))

	results, err := s.List(context.Background(), map[string]interface{}{
		"city":      "Austin",
		"startDate": start,
	}, 25)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Trade Show", results[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_CountFiltered(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewEventStore(db, nil, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE state = \$1`).
		WithArgs("TX").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	count, err := s.Count(context.Background(), map[string]interface{}{"state": "TX"})

	require.NoError(t, err)
	assert.Equal(t, int64(6), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
