package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

const eventColumns = "id, name, location, city, state, event_date, created_at"

// EventStore serves the read-mostly legacy event dataset.
type EventStore struct {
	db     *sql.DB
	cache  *Cache
	logger logger.Logger
}

func NewEventStore(db *sql.DB, cache *Cache, log logger.Logger) *EventStore {
	return &EventStore{
		db:     db,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"store": "events"}),
	}
}

func (s *EventStore) List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.Event, error) {
	where, args := eventFilterClauses(filters)
	query := `SELECT ` + eventColumns + ` FROM events` + where +
		` ORDER BY event_date ASC LIMIT $` + fmt.Sprint(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	var results []models.Event
	for rows.Next() {
		var e models.Event
		var location, city, state sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &location, &city, &state, &e.EventDate, &e.CreatedAt); err != nil {
			return nil, stderrors.NewInternalError(fmt.Errorf("scan event: %w", err))
		}
		e.Location = location.String
		e.City = city.String
		e.State = state.String
		results = append(results, e)
	}
	return results, rows.Err()
}

func (s *EventStore) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	where, args := eventFilterClauses(filters)

	cacheKey := countCacheKeyPrefix + "events"
	if len(args) == 0 {
		var cached int64
		if s.cache.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&count)
	if err != nil {
		return 0, stderrors.NewInternalError(fmt.Errorf("count events: %w", err))
	}
	if len(args) == 0 {
		s.cache.SetJSON(ctx, cacheKey, count)
	}
	return count, nil
}

func eventFilterClauses(filters map[string]interface{}) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	addEq := func(key, column string) {
		if v, ok := filters[key].(string); ok && v != "" {
			args = append(args, v)
			clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	addEq("city", "city")
	addEq("state", "state")

	addLike := func(key, column string) {
		if v, ok := filters[key].(string); ok && v != "" {
			args = append(args, v)
			clauses = append(clauses, fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", column, len(args)))
		}
	}
	addLike("name", "name")
	addLike("location", "location")

	if v, ok := filters["startDate"].(time.Time); ok {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("event_date >= $%d", len(args)))
	}
	if v, ok := filters["endDate"].(time.Time); ok {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("event_date <= $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
