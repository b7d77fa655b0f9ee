package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

func expenseRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "number", "title", "submitter", "status",
		"amount", "description", "report_date", "created_at", "updated_at",
	})
}

func expectCounterTx(mock sqlmock.Sqlmock, number int64) {
	mock.ExpectBegin()
	mock.ExpectQuery("(?s)UPDATE expense_counter SET value = value \\+ 1.+RETURNING value").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(number))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO expense_reports")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestExpenseStore_CreateAssignsCounterNumber(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	expectCounterTx(mock, 1042)

	created, err := s.Create(context.Background(), models.ExpenseReport{
		Title:     "Office Supplies",
		Submitter: "user-1",
		Amount:    42.5,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1042), created.Number)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.False(t, created.ReportDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_CreateRetriesOnSerializationConflict(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	// First attempt loses the race; the retry succeeds.
	mock.ExpectBegin()
	mock.ExpectQuery("(?s)UPDATE expense_counter SET value = value \\+ 1.+RETURNING value").
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	expectCounterTx(mock, 7)

	created, err := s.Create(context.Background(), models.ExpenseReport{
		Title:     "Lunch",
		Submitter: "user-1",
		Amount:    12,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), created.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_CreateGivesUpAfterBoundedRetries(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("(?s)UPDATE expense_counter SET value = value \\+ 1.+RETURNING value").
			WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()
	}

	_, err := s.Create(context.Background(), models.ExpenseReport{
		Title:     "Lunch",
		Submitter: "user-1",
		Amount:    12,
	})

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeInternal, err.(*stderrors.StandardError).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_FindByNumber(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM expense_reports WHERE number = $1")).
		WithArgs(int64(42)).
		WillReturnRows(expenseRows().AddRow(
			"e-1", 42, "Office Supplies", "user-1", "Draft",
			42.5, nil, now, now, now,
		))

	found, err := s.FindByIdentifier(context.Background(), "#42")

	require.NoError(t, err)
	assert.Equal(t, int64(42), found.Number)
	assert.Equal(t, "Office Supplies", found.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_FindByTitleFragment(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery("(?s)FROM expense_reports.+title ILIKE").
		WithArgs("supplies").
		WillReturnRows(expenseRows().AddRow(
			"e-1", 42, "Office Supplies", "user-1", "Draft",
			42.5, nil, now, now, now,
		))

	found, err := s.FindByIdentifier(context.Background(), "supplies")

	require.NoError(t, err)
	assert.Equal(t, "Office Supplies", found.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_FindNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	mock.ExpectQuery(regexp.QuoteMeta("FROM expense_reports WHERE number = $1")).
		WithArgs(int64(999)).
		WillReturnRows(expenseRows())

	_, err := s.FindByIdentifier(context.Background(), "999")

	require.Error(t, err)
	assert.True(t, stderrors.IsNotFound(err))
}

func TestExpenseStore_ListAppliesFilters(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery(`FROM expense_reports WHERE status = \$1 AND amount >= \$2 ORDER BY number DESC LIMIT \$3`).
		WithArgs("Draft", 100.0, 25).
		WillReturnRows(expenseRows().AddRow(
			"e-2", 43, "Conference", "user-2", "Draft",
			500.0, nil, now, now, now,
		))

	results, err := s.List(context.Background(), map[string]interface{}{
		"status":    "Draft",
		"minAmount": 100.0,
		"bogus":     "skipped",
	}, 25)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(43), results[0].Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_ListPriceFilterBoundsAmount(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery(`FROM expense_reports WHERE amount >= \$1 ORDER BY number DESC LIMIT \$2`).
		WithArgs(100.0, 25).
		WillReturnRows(expenseRows().AddRow(
			"e-3", 44, "Trade Show", "user-2", "Draft",
			850.0, nil, now, now, now,
		))

	results, err := s.List(context.Background(), map[string]interface{}{
		"priceFilter": ">100",
	}, 25)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 850.0, results[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_ListPriceFilterExclusiveUpperBound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	mock.ExpectQuery(`FROM expense_reports WHERE amount < \$1 ORDER BY number DESC LIMIT \$2`).
		WithArgs(50.0, 25).
		WillReturnRows(expenseRows())

	_, err := s.List(context.Background(), map[string]interface{}{
		"priceFilter": "<50",
	}, 25)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_ListSkipsMalformedPriceFilter(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	mock.ExpectQuery(`FROM expense_reports ORDER BY number DESC LIMIT \$1`).
		WithArgs(25).
		WillReturnRows(expenseRows())

	_, err := s.List(context.Background(), map[string]interface{}{
		"priceFilter": "pricey",
	}, 25)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_Aggregate(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(amount) FROM expense_reports")).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1234.56))

	value, err := s.Aggregate(context.Background(), "sum", nil)

	require.NoError(t, err)
	assert.Equal(t, 1234.56, value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_AggregateEmptyTableIsZero(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT AVG(amount) FROM expense_reports")).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))

	value, err := s.Aggregate(context.Background(), "average", nil)

	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
}

func TestExpenseStore_AggregateRejectsUnknownMetric(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	_, err := s.Aggregate(context.Background(), "median", nil)

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeInvalidArgument, err.(*stderrors.StandardError).Code)
}

func TestExpenseStore_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM expense_reports WHERE number = $1")).
		WithArgs(int64(42)).
		WillReturnRows(expenseRows().AddRow(
			"e-1", 42, "Office Supplies", "user-1", "Draft",
			42.5, nil, now, now, now,
		))
	mock.ExpectQuery(`(?s)UPDATE expense_reports SET status = \$1, updated_at = \$2.+WHERE id = \$3.+RETURNING`).
		WithArgs("Submitted", sqlmock.AnyArg(), "e-1").
		WillReturnRows(expenseRows().AddRow(
			"e-1", 42, "Office Supplies", "user-1", "Submitted",
			42.5, nil, now, now, now,
		))

	updated, err := s.Update(context.Background(), "42", map[string]interface{}{
		"status": "Submitted",
	})

	require.NoError(t, err)
	assert.Equal(t, "Submitted", updated.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseStore_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewExpenseStore(db, nil, logger.NewTestLogger(t))

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM expense_reports WHERE number = $1")).
		WithArgs(int64(42)).
		WillReturnRows(expenseRows().AddRow(
			"e-1", 42, "Office Supplies", "user-1", "Draft",
			42.5, nil, now, now, now,
		))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM expense_reports WHERE id = $1")).
		WithArgs("e-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := s.Delete(context.Background(), "42")

	require.NoError(t, err)
	assert.Equal(t, "e-1", deleted.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
