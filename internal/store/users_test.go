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

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "display_name", "role", "is_master_admin", "created_at", "updated_at",
	})
}

func TestUserStore_FindByIdentifier(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewUserStore(db, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery("(?s)SELECT .+ FROM users").
		WithArgs("ann@example.com").
		WillReturnRows(userRows().AddRow(
			"u-1", "ann@example.com", "Ann Smith", "viewer", false, now, now,
		))

	found, err := s.FindByIdentifier(context.Background(), "ann@example.com")

	require.NoError(t, err)
	assert.Equal(t, "u-1", found.ID)
	assert.Equal(t, "viewer", found.Role)
	assert.False(t, found.IsMasterAdmin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_FindByIdentifierNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewUserStore(db, logger.NewTestLogger(t))

	mock.ExpectQuery("(?s)SELECT .+ FROM users").
		WithArgs("ghost").
		WillReturnRows(userRows())

	_, err := s.FindByIdentifier(context.Background(), "ghost")

	require.Error(t, err)
	assert.True(t, stderrors.IsNotFound(err))
}

func TestUserStore_ListByRole(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewUserStore(db, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery(`FROM users WHERE role = \$1 ORDER BY created_at ASC LIMIT \$2`).
		WithArgs("applicant", 25).
		WillReturnRows(userRows().AddRow(
			"u-2", "new@example.com", nil, "applicant", false, now, now,
		))

	results, err := s.List(context.Background(), map[string]interface{}{"role": "applicant"}, 25)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "applicant", results[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_SetRole(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewUserStore(db, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery(`(?s)UPDATE users SET role = \$1, updated_at = now\(\).+WHERE id = \$2.+RETURNING`).
		WithArgs("viewer", "u-2").
		WillReturnRows(userRows().AddRow(
			"u-2", "new@example.com", nil, "viewer", false, now, now,
		))

	updated, err := s.SetRole(context.Background(), "u-2", "viewer")

	require.NoError(t, err)
	assert.Equal(t, "viewer", updated.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewUserStore(db, logger.NewTestLogger(t))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("u-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Delete(context.Background(), "u-2")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_DeleteMissingRowIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewUserStore(db, logger.NewTestLogger(t))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(context.Background(), "ghost")

	require.Error(t, err)
	assert.True(t, stderrors.IsNotFound(err))
}
