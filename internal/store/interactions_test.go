package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
)

func interactionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "contact_id", "type", "summary", "created_by", "created_at",
	})
}

func TestInteractionStore_Log(t *testing.T) {
	db, mock := newMockDB(t)
	log := logger.NewTestLogger(t)
	contacts := NewContactStore(db, nil, "", nil, log)
	s := NewInteractionStore(db, contacts, nil, log)

	now := time.Now()
	mock.ExpectQuery("(?s)SELECT .+ FROM contacts").
		WithArgs("Alice Johnson").
		WillReturnRows(contactRows().AddRow(
			"c-1", "Alice Johnson", nil, nil, nil, nil,
			nil, nil, nil, now, now,
		))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO interactions")).
		WithArgs(sqlmock.AnyArg(), "c-1", "call", "Discussed renewal pricing", "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record, err := s.Log(context.Background(), "Alice Johnson", "call", "Discussed renewal pricing", "user-1")

	require.NoError(t, err)
	assert.Equal(t, "c-1", record.ContactID)
	assert.Equal(t, "call", record.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionStore_LogUnknownContact(t *testing.T) {
	db, mock := newMockDB(t)
	log := logger.NewTestLogger(t)
	contacts := NewContactStore(db, nil, "", nil, log)
	s := NewInteractionStore(db, contacts, nil, log)

	mock.ExpectQuery("(?s)SELECT .+ FROM contacts").
		WithArgs("nobody").
		WillReturnRows(contactRows())

	_, err := s.Log(context.Background(), "nobody", "note", "hello", "user-1")

	require.Error(t, err)
	assert.True(t, stderrors.IsNotFound(err))
}

func TestInteractionStore_Summary(t *testing.T) {
	db, mock := newMockDB(t)
	log := logger.NewTestLogger(t)
	contacts := NewContactStore(db, nil, "", nil, log)
	s := NewInteractionStore(db, contacts, nil, log)

	now := time.Now()
	mock.ExpectQuery("(?s)SELECT .+ FROM contacts").
		WithArgs("Alice Johnson").
		WillReturnRows(contactRows().AddRow(
			"c-1", "Alice Johnson", nil, nil, nil, nil,
			nil, nil, nil, now, now,
		))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM interactions WHERE contact_id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery("(?s)FROM interactions.+ORDER BY created_at DESC").
		WithArgs("c-1", summaryRecentLimit).
		WillReturnRows(interactionRows().
			AddRow("i-2", "c-1", "call", "Renewal call", "user-1", now).
			AddRow("i-1", "c-1", "email", "Sent proposal", nil, now.Add(-time.Hour)))

	summary, err := s.Summary(context.Background(), "Alice Johnson")

	require.NoError(t, err)
	assert.Equal(t, "Alice Johnson", summary.Contact.Name)
	assert.Equal(t, 12, summary.InteractionCount)
	require.Len(t, summary.Recent, 2)
	assert.Equal(t, "Renewal call", summary.Recent[0].Summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionStore_CountByType(t *testing.T) {
	db, mock := newMockDB(t)
	log := logger.NewTestLogger(t)
	s := NewInteractionStore(db, NewContactStore(db, nil, "", nil, log), nil, log)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM interactions WHERE type = $1")).
		WithArgs("call").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := s.Count(context.Background(), map[string]interface{}{"type": "call"})

	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
