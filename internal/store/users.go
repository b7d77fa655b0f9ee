package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

const userColumns = "id, email, display_name, role, is_master_admin, created_at, updated_at"

type UserStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewUserStore(db *sql.DB, log logger.Logger) *UserStore {
	return &UserStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"store": "users"}),
	}
}

// FindByIdentifier resolves an email or display-name fragment to a
// single account. An exact email match wins over a name match.
func (s *UserStore) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = lower($1)
		   OR display_name ILIKE '%' || $1 || '%'
		ORDER BY (lower(email) = lower($1)) DESC, created_at ASC
		LIMIT 1`, identifier)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewNotFoundError("user", identifier)
	}
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("find user: %w", err))
	}
	return u, nil
}

func (s *UserStore) List(ctx context.Context, filters map[string]interface{}, limit int) ([]models.User, error) {
	where, args := userFilterClauses(filters)
	query := `SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY created_at ASC LIMIT $` + fmt.Sprint(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("list users: %w", err))
	}
	defer rows.Close()

	var results []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, stderrors.NewInternalError(fmt.Errorf("scan user: %w", err))
		}
		results = append(results, *u)
	}
	return results, rows.Err()
}

func (s *UserStore) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	where, args := userFilterClauses(filters)

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&count)
	if err != nil {
		return 0, stderrors.NewInternalError(fmt.Errorf("count users: %w", err))
	}
	return count, nil
}

// SetRole updates the target's role and returns the new row. Hierarchy
// checks happen before this is called.
func (s *UserStore) SetRole(ctx context.Context, userID, role string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET role = $1, updated_at = now()
		WHERE id = $2
		RETURNING `+userColumns, role, userID)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewNotFoundError("user", userID)
	}
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("set user role: %w", err))
	}

	s.logger.Info("user role changed", map[string]interface{}{
		"userId": u.ID,
		"role":   u.Role,
	})
	return u, nil
}

func (s *UserStore) Delete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return stderrors.NewInternalError(fmt.Errorf("delete user: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return stderrors.NewNotFoundError("user", userID)
	}

	s.logger.Info("user deleted", map[string]interface{}{"userId": userID})
	return nil
}

func userFilterClauses(filters map[string]interface{}) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	if v, ok := filters["role"].(string); ok && v != "" {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var displayName sql.NullString
	err := row.Scan(&u.ID, &u.Email, &displayName, &u.Role, &u.IsMasterAdmin,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.DisplayName = displayName.String
	return &u, nil
}
