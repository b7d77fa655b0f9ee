package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

// summaryRecentLimit bounds the interactions embedded in a customer
// summary.
const summaryRecentLimit = 5

type InteractionStore struct {
	db       *sql.DB
	contacts *ContactStore
	cache    *Cache
	logger   logger.Logger
}

func NewInteractionStore(db *sql.DB, contacts *ContactStore, cache *Cache, log logger.Logger) *InteractionStore {
	return &InteractionStore{
		db:       db,
		contacts: contacts,
		cache:    cache,
		logger:   log.WithFields(map[string]interface{}{"store": "interactions"}),
	}
}

// Log records a touch-point against the contact the identifier resolves
// to. The contact's summary cache entry is invalidated.
func (s *InteractionStore) Log(ctx context.Context, identifier, interactionType, summary, createdBy string) (*models.Interaction, error) {
	contact, err := s.contacts.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	record := models.Interaction{
		ID:        uuid.New().String(),
		ContactID: contact.ID,
		Type:      interactionType,
		Summary:   summary,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, contact_id, type, summary, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.ContactID, record.Type, record.Summary, record.CreatedBy, record.CreatedAt,
	)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("insert interaction: %w", err))
	}

	s.cache.Invalidate(ctx, summaryCacheKey(contact.ID))

	s.logger.Info("interaction logged", map[string]interface{}{
		"contactId": contact.ID,
		"type":      record.Type,
	})
	return &record, nil
}

// Summary aggregates a contact with its interaction count and most
// recent touch-points. Results are served from cache when fresh.
func (s *InteractionStore) Summary(ctx context.Context, identifier string) (*models.CustomerSummary, error) {
	contact, err := s.contacts.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var cached models.CustomerSummary
	if s.cache.GetJSON(ctx, summaryCacheKey(contact.ID), &cached) {
		return &cached, nil
	}

	summary := models.CustomerSummary{Contact: *contact}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE contact_id = $1`, contact.ID,
	).Scan(&summary.InteractionCount)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("count interactions: %w", err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_id, type, summary, created_by, created_at
		FROM interactions
		WHERE contact_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, contact.ID, summaryRecentLimit)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("list interactions: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var it models.Interaction
		var createdBy sql.NullString
		if err := rows.Scan(&it.ID, &it.ContactID, &it.Type, &it.Summary, &createdBy, &it.CreatedAt); err != nil {
			return nil, stderrors.NewInternalError(fmt.Errorf("scan interaction: %w", err))
		}
		it.CreatedBy = createdBy.String
		summary.Recent = append(summary.Recent, it)
	}
	if err := rows.Err(); err != nil {
		return nil, stderrors.NewInternalError(err)
	}

	s.cache.SetJSON(ctx, summaryCacheKey(contact.ID), summary)
	return &summary, nil
}

// Count tallies interactions, optionally narrowed by type.
func (s *InteractionStore) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	query := `SELECT COUNT(*) FROM interactions`
	args := []interface{}{}
	if v, ok := filters["type"].(string); ok && v != "" {
		query += ` WHERE type = $1`
		args = append(args, v)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, stderrors.NewInternalError(fmt.Errorf("count interactions: %w", err))
	}
	return count, nil
}

func summaryCacheKey(contactID string) string {
	return "summary:" + contactID
}
