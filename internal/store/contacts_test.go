package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func contactRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "email", "phone", "company", "category",
		"city", "state", "notes", "created_at", "updated_at",
	})
}

func TestContactStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewContactStore(db, nil, "", nil, logger.NewTestLogger(t))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contacts")).
		WithArgs(sqlmock.AnyArg(), "John Smith", "john@acme.com", "", "Acme Corp",
			"Customer", "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := s.Create(context.Background(), models.Contact{
		Name:     "John Smith",
		Email:    "john@acme.com",
		Company:  "Acme Corp",
		Category: "Customer",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactStore_FindByIdentifier(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewContactStore(db, nil, "", nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery("(?s)SELECT .+ FROM contacts").
		WithArgs("alice").
		WillReturnRows(contactRows().AddRow(
			"c-1", "Alice Johnson", "alice@example.com", nil, nil, "Customer",
			"Austin", "TX", nil, now, now,
		))

	found, err := s.FindByIdentifier(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, "Alice Johnson", found.Name)
	assert.Equal(t, "Customer", found.Category)
	// NULL columns come back as empty strings.
	assert.Equal(t, "", found.Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactStore_FindByIdentifierNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewContactStore(db, nil, "", nil, logger.NewTestLogger(t))

	mock.ExpectQuery("(?s)SELECT .+ FROM contacts").
		WithArgs("nobody").
		WillReturnRows(contactRows())

	_, err := s.FindByIdentifier(context.Background(), "nobody")

	require.Error(t, err)
	assert.True(t, stderrors.IsNotFound(err))
}

func TestContactStore_ListAppliesFilters(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewContactStore(db, nil, "", nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM contacts WHERE category = \$1 AND city = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("Supplier", "Austin", 10).
		WillReturnRows(contactRows().AddRow(
			"c-2", "Supply Co", nil, nil, nil, "Supplier",
			"Austin", "TX", nil, now, now,
		))

	results, err := s.List(context.Background(), map[string]interface{}{
		"category": "Supplier",
		"city":     "Austin",
		"bogus":    "ignored",
		"signed":   42, // non-string values are skipped
	}, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Supply Co", results[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactStore_CountUnfiltered(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewContactStore(db, nil, "", nil, logger.NewTestLogger(t))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM contacts")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := s.Count(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactStore_UpdateSingleField(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewContactStore(db, nil, "", nil, logger.NewTestLogger(t))

	now := time.Now()
	// Identifier resolution first.
	mock.ExpectQuery("(?s)SELECT .+ FROM contacts").
		WithArgs("Bob Lee").
		WillReturnRows(contactRows().AddRow(
			"c-3", "Bob Lee", "bob@oldmail.com", nil, nil, nil,
			nil, nil, nil, now, now,
		))
	mock.ExpectQuery(`(?s)UPDATE contacts SET email = \$1, updated_at = \$2.+WHERE id = \$3.+RETURNING`).
		WithArgs("bob@newmail.com", sqlmock.AnyArg(), "c-3").
		WillReturnRows(contactRows().AddRow(
			"c-3", "Bob Lee", "bob@newmail.com", nil, nil, nil,
			nil, nil, nil, now, now,
		))

	updated, err := s.Update(context.Background(), "Bob Lee", map[string]interface{}{
		"email": "bob@newmail.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "bob@newmail.com", updated.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactStore_UpdateNoOpWithoutChanges(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewContactStore(db, nil, "", nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery("(?s)SELECT .+ FROM contacts").
		WithArgs("Bob Lee").
		WillReturnRows(contactRows().AddRow(
			"c-3", "Bob Lee", nil, nil, nil, nil,
			nil, nil, nil, now, now,
		))

	updated, err := s.Update(context.Background(), "Bob Lee", map[string]interface{}{
		"unknownField": "value",
	})

	require.NoError(t, err)
	assert.Equal(t, "Bob Lee", updated.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactStore_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewContactStore(db, nil, "", nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery("(?s)SELECT .+ FROM contacts").
		WithArgs("Alice Johnson").
		WillReturnRows(contactRows().AddRow(
			"c-1", "Alice Johnson", nil, nil, nil, nil,
			nil, nil, nil, now, now,
		))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM contacts WHERE id = $1")).
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := s.Delete(context.Background(), "Alice Johnson")

	require.NoError(t, err)
	assert.Equal(t, "c-1", deleted.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
