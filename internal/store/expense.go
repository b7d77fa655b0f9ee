package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crm-assistant/internal/assistant/normalize"
	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

const expenseColumns = "id, number, title, submitter, status, amount, description, report_date, created_at, updated_at"

// counterConflictRetries bounds retries when two transactions race on
// the sequence row. The counter row is exclusively locked by the
// UPDATE, so conflicts only surface under serializable isolation.
const counterConflictRetries = 3

type ExpenseStore struct {
	db     *sql.DB
	cache  *Cache
	logger logger.Logger
}

func NewExpenseStore(db *sql.DB, cache *Cache, log logger.Logger) *ExpenseStore {
	return &ExpenseStore{
		db:     db,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"store": "expense_reports"}),
	}
}

// Create inserts a new draft report. The report number comes from a
// single-row counter table updated in the same transaction as the
// insert, so numbers are unique and gapless even under concurrency.
func (s *ExpenseStore) Create(ctx context.Context, r models.ExpenseReport) (*models.ExpenseReport, error) {
	r.ID = uuid.New().String()
	r.Status = models.StatusDraft
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.ReportDate.IsZero() {
		r.ReportDate = now
	}

	var lastErr error
	for attempt := 0; attempt <= counterConflictRetries; attempt++ {
		number, err := s.insertWithNumber(ctx, &r, now)
		if err == nil {
			r.Number = number
			s.cache.Invalidate(ctx, countCacheKeyPrefix+"expense_reports")
			s.logger.Info("expense report created", map[string]interface{}{
				"reportId": r.ID,
				"number":   r.Number,
			})
			return &r, nil
		}
		if !isSerializationError(err) {
			return nil, stderrors.NewInternalError(fmt.Errorf("insert expense report: %w", err))
		}
		lastErr = err
	}
	return nil, stderrors.NewInternalError(fmt.Errorf("sequence conflict not resolved: %w", lastErr))
}

func (s *ExpenseStore) insertWithNumber(ctx context.Context, r *models.ExpenseReport, now time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var number int64
	err = tx.QueryRowContext(ctx, `
		UPDATE expense_counter SET value = value + 1
		WHERE id = 1
		RETURNING value`).Scan(&number)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expense_reports (`+expenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		r.ID, number, r.Title, r.Submitter, r.Status,
		r.Amount, r.Description, r.ReportDate, now,
	)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return number, nil
}

// FindByIdentifier resolves either a report number ("42", "#42") or a
// title fragment to the single best match.
func (s *ExpenseStore) FindByIdentifier(ctx context.Context, identifier string) (*models.ExpenseReport, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(identifier), "#")
	if number, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+expenseColumns+` FROM expense_reports WHERE number = $1`, number)
		r, err := scanExpense(row)
		if err == sql.ErrNoRows {
			return nil, stderrors.NewNotFoundError("expense report", identifier)
		}
		if err != nil {
			return nil, stderrors.NewInternalError(err)
		}
		return r, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expense_reports
		WHERE title ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT 1`, identifier)
	r, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewNotFoundError("expense report", identifier)
	}
	if err != nil {
		return nil, stderrors.NewInternalError(err)
	}
	return r, nil
}

func (s *ExpenseStore) List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.ExpenseReport, error) {
	where, args := expenseFilterClauses(filters)
	query := `SELECT ` + expenseColumns + ` FROM expense_reports` + where +
		` ORDER BY number DESC LIMIT $` + fmt.Sprint(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("list expense reports: %w", err))
	}
	defer rows.Close()

	var results []models.ExpenseReport
	for rows.Next() {
		r, err := scanExpense(rows)
		if err != nil {
			return nil, stderrors.NewInternalError(fmt.Errorf("scan expense report: %w", err))
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func (s *ExpenseStore) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	where, args := expenseFilterClauses(filters)

	// Only the unfiltered total is cached; filtered keys are unbounded.
	cacheKey := countCacheKeyPrefix + "expense_reports"
	if len(args) == 0 {
		var cached int64
		if s.cache.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expense_reports`+where, args...).Scan(&count)
	if err != nil {
		return 0, stderrors.NewInternalError(fmt.Errorf("count expense reports: %w", err))
	}
	if len(args) == 0 {
		s.cache.SetJSON(ctx, cacheKey, count)
	}
	return count, nil
}

// Aggregate computes a whitelisted metric over the amount column.
func (s *ExpenseStore) Aggregate(ctx context.Context, metric string, filters map[string]interface{}) (float64, error) {
	fn, ok := aggregateFunctions[strings.ToLower(metric)]
	if !ok {
		return 0, stderrors.NewInvalidArgumentError("metric",
			fmt.Sprintf("unsupported metric %q for expense reports", metric))
	}

	where, args := expenseFilterClauses(filters)

	var value sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT `+fn+`(amount) FROM expense_reports`+where, args...).Scan(&value)
	if err != nil {
		return 0, stderrors.NewInternalError(fmt.Errorf("aggregate expense reports: %w", err))
	}
	return value.Float64, nil
}

func (s *ExpenseStore) Update(ctx context.Context, identifier string, updates map[string]interface{}) (*models.ExpenseReport, error) {
	existing, err := s.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	sets := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if v, ok := updates["title"].(string); ok && v != "" {
		add("title", v)
	}
	if v, ok := updates["status"].(string); ok && v != "" {
		add("status", v)
	}
	if v, ok := updates["description"].(string); ok && v != "" {
		add("description", v)
	}
	if v, ok := updates["amount"].(float64); ok {
		add("amount", v)
	}
	if v, ok := updates["reportDate"].(time.Time); ok {
		add("report_date", v)
	}
	if len(sets) == 0 {
		return existing, nil
	}

	add("updated_at", time.Now().UTC())
	args = append(args, existing.ID)

	row := s.db.QueryRowContext(ctx, `
		UPDATE expense_reports SET `+strings.Join(sets, ", ")+`
		WHERE id = $`+fmt.Sprint(len(args))+`
		RETURNING `+expenseColumns, args...)

	updated, err := scanExpense(row)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("update expense report: %w", err))
	}
	s.cache.Invalidate(ctx, countCacheKeyPrefix+"expense_reports")
	return updated, nil
}

func (s *ExpenseStore) Delete(ctx context.Context, identifier string) (*models.ExpenseReport, error) {
	existing, err := s.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM expense_reports WHERE id = $1`, existing.ID); err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("delete expense report: %w", err))
	}

	s.cache.Invalidate(ctx, countCacheKeyPrefix+"expense_reports")
	s.logger.Info("expense report deleted", map[string]interface{}{
		"reportId": existing.ID,
		"number":   existing.Number,
	})
	return existing, nil
}

func isSerializationError(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		// 40001 serialization_failure, 40P01 deadlock_detected.
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func expenseFilterClauses(filters map[string]interface{}) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	if v, ok := filters["status"].(string); ok && v != "" {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if v, ok := filters["submitter"].(string); ok && v != "" {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("submitter ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if v, ok := filters["title"].(string); ok && v != "" {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("title ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if v, ok := filters["minAmount"].(float64); ok {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("amount >= $%d", len(args)))
	}
	if v, ok := filters["maxAmount"].(float64); ok {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("amount <= $%d", len(args)))
	}
	if v, ok := filters["priceFilter"].(string); ok && v != "" {
		if pr, ok := normalize.ParsePriceFilter(v); ok {
			if pr.Min != nil {
				args = append(args, *pr.Min)
				clauses = append(clauses, fmt.Sprintf("amount >= $%d", len(args)))
			}
			if pr.Max != nil {
				op := "<="
				if pr.MaxExclusive {
					op = "<"
				}
				args = append(args, *pr.Max)
				clauses = append(clauses, fmt.Sprintf("amount %s $%d", op, len(args)))
			}
		}
		// Malformed price filters are skipped rather than rejected.
	}
	if v, ok := filters["startDate"].(time.Time); ok {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("report_date >= $%d", len(args)))
	}
	if v, ok := filters["endDate"].(time.Time); ok {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("report_date <= $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanExpense(row rowScanner) (*models.ExpenseReport, error) {
	var r models.ExpenseReport
	var description sql.NullString
	err := row.Scan(&r.ID, &r.Number, &r.Title, &r.Submitter, &r.Status,
		&r.Amount, &description, &r.ReportDate, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Description = description.String
	return &r, nil
}
