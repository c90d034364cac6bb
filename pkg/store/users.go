package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cascade/pkg/domain"
)

// UpsertUser inserts or replaces a directory record.
func (s *Store) UpsertUser(ctx context.Context, u *domain.UserInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, manager_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     name=excluded.name, email=excluded.email, manager_id=excluded.manager_id`,
		u.ID, u.Name, u.Email, u.ManagerID)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// Resolve returns the directory record for a user ID.
func (s *Store) Resolve(ctx context.Context, userID string) (*domain.UserInfo, error) {
	var u domain.UserInfo
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, manager_id FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Name, &u.Email, &u.ManagerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "user", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	return &u, nil
}
