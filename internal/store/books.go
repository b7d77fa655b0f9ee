package store

import (
	"context"
	"fmt"
	"strings"

	"database/sql"

	"crm-assistant/internal/assistant/normalize"
	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

const bookColumns = "id, title, author, publisher, price, signed, created_at"

// BookStore serves the read-mostly legacy book dataset.
type BookStore struct {
	db     *sql.DB
	cache  *Cache
	logger logger.Logger
}

func NewBookStore(db *sql.DB, cache *Cache, log logger.Logger) *BookStore {
	return &BookStore{
		db:     db,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"store": "books"}),
	}
}

func (s *BookStore) List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.Book, error) {
	where, args := bookFilterClauses(filters)
	query := `SELECT ` + bookColumns + ` FROM books` + where +
		` ORDER BY title ASC LIMIT $` + fmt.Sprint(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("list books: %w", err))
	}
	defer rows.Close()

	var results []models.Book
	for rows.Next() {
		var b models.Book
		var author, publisher sql.NullString
		var price sql.NullFloat64
		if err := rows.Scan(&b.ID, &b.Title, &author, &publisher, &price, &b.Signed, &b.CreatedAt); err != nil {
			return nil, stderrors.NewInternalError(fmt.Errorf("scan book: %w", err))
		}
		b.Author = author.String
		b.Publisher = publisher.String
		b.Price = price.Float64
		results = append(results, b)
	}
	return results, rows.Err()
}

func (s *BookStore) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	where, args := bookFilterClauses(filters)

	cacheKey := countCacheKeyPrefix + "books"
	if len(args) == 0 {
		var cached int64
		if s.cache.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&count)
	if err != nil {
		return 0, stderrors.NewInternalError(fmt.Errorf("count books: %w", err))
	}
	if len(args) == 0 {
		s.cache.SetJSON(ctx, cacheKey, count)
	}
	return count, nil
}

// Aggregate computes a whitelisted metric over the price column.
func (s *BookStore) Aggregate(ctx context.Context, metric string, filters map[string]interface{}) (float64, error) {
	fn, ok := aggregateFunctions[strings.ToLower(metric)]
	if !ok {
		return 0, stderrors.NewInvalidArgumentError("metric",
			fmt.Sprintf("unsupported metric %q for books", metric))
	}

	where, args := bookFilterClauses(filters)

	var value sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT `+fn+`(price) FROM books`+where, args...).Scan(&value)
	if err != nil {
		return 0, stderrors.NewInternalError(fmt.Errorf("aggregate books: %w", err))
	}
	return value.Float64, nil
}

// aggregateFunctions maps metric names to SQL aggregates. The
// whitelist keeps oracle-supplied metric strings out of the query
// text.
var aggregateFunctions = map[string]string{
	"sum":     "SUM",
	"total":   "SUM",
	"avg":     "AVG",
	"average": "AVG",
	"min":     "MIN",
	"max":     "MAX",
}

func bookFilterClauses(filters map[string]interface{}) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	addLike := func(key, column string) {
		if v, ok := filters[key].(string); ok && v != "" {
			args = append(args, v)
			clauses = append(clauses, fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", column, len(args)))
		}
	}
	addLike("title", "title")
	addLike("author", "author")
	addLike("publisher", "publisher")

	if v, ok := filters["signed"].(bool); ok {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("signed = $%d", len(args)))
	}

	if v, ok := filters["priceFilter"].(string); ok && v != "" {
		if pr, ok := normalize.ParsePriceFilter(v); ok {
			if pr.Min != nil {
				args = append(args, *pr.Min)
				clauses = append(clauses, fmt.Sprintf("price >= $%d", len(args)))
			}
			if pr.Max != nil {
				op := "<="
				if pr.MaxExclusive {
					op = "<"
				}
				args = append(args, *pr.Max)
				clauses = append(clauses, fmt.Sprintf("price %s $%d", op, len(args)))
			}
		}
		// Malformed price filters are skipped rather than rejected.
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
