// Package store is the persistence layer: Postgres is the system of
// record, Elasticsearch accelerates fuzzy contact lookup, Redis caches
// aggregate queries. Filter maps are permissive: unknown or malformed
// filter values are skipped, never rejected.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

const contactColumns = "id, name, email, phone, company, category, city, state, notes, created_at, updated_at"

type ContactStore struct {
	db      *sql.DB
	es      *elasticsearch.Client
	esIndex string
	cache   *Cache
	logger  logger.Logger
}

// NewContactStore builds the contact store. es may be nil; lookup then
// falls back to Postgres pattern matching.
func NewContactStore(db *sql.DB, es *elasticsearch.Client, esIndex string, cache *Cache, log logger.Logger) *ContactStore {
	return &ContactStore{
		db:      db,
		es:      es,
		esIndex: esIndex,
		cache:   cache,
		logger:  log.WithFields(map[string]interface{}{"store": "contacts"}),
	}
}

func (s *ContactStore) Create(ctx context.Context, c models.Contact) (*models.Contact, error) {
	c.ID = uuid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		c.ID, c.Name, c.Email, c.Phone, c.Company, c.Category,
		c.City, c.State, c.Notes, now,
	)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("insert contact: %w", err))
	}

	// Secondary index write is non-critical.
	s.indexContact(ctx, &c)
	s.cache.Invalidate(ctx, countCacheKeyPrefix+"contacts")

	s.logger.Info("contact created", map[string]interface{}{
		"contactId": c.ID,
		"name":      c.Name,
	})
	return &c, nil
}

// FindByIdentifier resolves a free-text identifier (name, email or
// company fragment) to the single best-matching contact.
func (s *ContactStore) FindByIdentifier(ctx context.Context, identifier string) (*models.Contact, error) {
	if s.es != nil {
		if id, ok := s.searchContactID(ctx, identifier); ok {
			c, err := s.getByID(ctx, id)
			if err == nil {
				return c, nil
			}
			// Stale index entry; fall through to Postgres.
		}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE name ILIKE '%' || $1 || '%'
		   OR email ILIKE '%' || $1 || '%'
		   OR company ILIKE '%' || $1 || '%'
		ORDER BY (name ILIKE $1) DESC, created_at DESC
		LIMIT 1`, identifier)

	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewNotFoundError("contact", identifier)
	}
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("find contact: %w", err))
	}
	return c, nil
}

// List returns contacts matching the filters, newest first. Unknown
// filter keys are ignored.
func (s *ContactStore) List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.Contact, error) {
	where, args := contactFilterClauses(filters)
	query := `SELECT ` + contactColumns + ` FROM contacts` + where +
		` ORDER BY created_at DESC LIMIT $` + fmt.Sprint(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("list contacts: %w", err))
	}
	defer rows.Close()

	var results []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, stderrors.NewInternalError(fmt.Errorf("scan contact: %w", err))
		}
		results = append(results, *c)
	}
	return results, rows.Err()
}

func (s *ContactStore) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	where, args := contactFilterClauses(filters)

	cacheKey := countCacheKeyPrefix + "contacts"
	if len(args) == 0 {
		var cached int64
		if s.cache.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`+where, args...).Scan(&count)
	if err != nil {
		return 0, stderrors.NewInternalError(fmt.Errorf("count contacts: %w", err))
	}
	if len(args) == 0 {
		s.cache.SetJSON(ctx, cacheKey, count)
	}
	return count, nil
}

// Update resolves the identifier, applies whitelisted field updates and
// returns the new row.
func (s *ContactStore) Update(ctx context.Context, identifier string, updates map[string]interface{}) (*models.Contact, error) {
	existing, err := s.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	sets := []string{}
	args := []interface{}{}
	for field, column := range contactUpdatable {
		if v, ok := updates[field].(string); ok && v != "" {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	if len(sets) == 0 {
		return existing, nil
	}

	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, existing.ID)

	row := s.db.QueryRowContext(ctx, `
		UPDATE contacts SET `+strings.Join(sets, ", ")+`
		WHERE id = $`+fmt.Sprint(len(args))+`
		RETURNING `+contactColumns, args...)

	updated, err := scanContact(row)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("update contact: %w", err))
	}

	s.indexContact(ctx, updated)
	return updated, nil
}

func (s *ContactStore) Delete(ctx context.Context, identifier string) (*models.Contact, error) {
	existing, err := s.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, existing.ID); err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("delete contact: %w", err))
	}

	if s.es != nil {
		req := esapi.DeleteRequest{Index: s.esIndex, DocumentID: existing.ID}
		if res, err := req.Do(ctx, s.es); err == nil {
			res.Body.Close()
		}
	}

	s.cache.Invalidate(ctx, countCacheKeyPrefix+"contacts", summaryCacheKey(existing.ID))
	s.logger.Info("contact deleted", map[string]interface{}{"contactId": existing.ID})
	return existing, nil
}

func (s *ContactStore) getByID(ctx context.Context, id string) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewNotFoundError("contact", id)
	}
	if err != nil {
		return nil, stderrors.NewInternalError(err)
	}
	return c, nil
}

// searchContactID runs a fuzzy multi_match against the contact index
// and returns the top hit's document id.
func (s *ContactStore) searchContactID(ctx context.Context, identifier string) (string, bool) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     identifier,
				"fields":    []string{"name^3", "email^2", "company"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
	}
	raw, _ := json.Marshal(body)

	size := 1
	req := esapi.SearchRequest{
		Index: []string{s.esIndex},
		Body:  bytes.NewReader(raw),
		Size:  &size,
	}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		s.logger.Warn("contact search failed, falling back to postgres", map[string]interface{}{
			"error": err.Error(),
		})
		return "", false
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", false
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil || len(parsed.Hits.Hits) == 0 {
		return "", false
	}
	return parsed.Hits.Hits[0].ID, true
}

func (s *ContactStore) indexContact(ctx context.Context, c *models.Contact) {
	if s.es == nil {
		return
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return
	}
	req := esapi.IndexRequest{
		Index:      s.esIndex,
		DocumentID: c.ID,
		Body:       bytes.NewReader(doc),
	}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		s.logger.Warn("contact index write failed", map[string]interface{}{
			"contactId": c.ID,
			"error":     err.Error(),
		})
		return
	}
	res.Body.Close()
}

var contactUpdatable = map[string]string{
	"name":     "name",
	"email":    "email",
	"phone":    "phone",
	"company":  "company",
	"category": "category",
	"city":     "city",
	"state":    "state",
	"notes":    "notes",
}

// contactFilterClauses turns a filter map into a WHERE clause over
// whitelisted columns. Non-string or empty values are skipped.
func contactFilterClauses(filters map[string]interface{}) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	addEq := func(key, column string) {
		if v, ok := filters[key].(string); ok && v != "" {
			args = append(args, v)
			clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	addEq("category", "category")
	addEq("city", "city")
	addEq("state", "state")

	if v, ok := filters["company"].(string); ok && v != "" {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("company ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if v, ok := filters["name"].(string); ok && v != "" {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("name ILIKE '%%' || $%d || '%%'", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var c models.Contact
	var email, phone, company, category, city, state, notes sql.NullString
	err := row.Scan(&c.ID, &c.Name, &email, &phone, &company, &category,
		&city, &state, &notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Phone = phone.String
	c.Company = company.String
	c.Category = category.String
	c.City = city.String
	c.State = state.String
	c.Notes = notes.String
	return &c, nil
}
