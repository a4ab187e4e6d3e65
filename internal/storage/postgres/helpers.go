package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row pgx.Row) (storage.User, error) {
	var u storage.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Status,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.User{}, storage.ErrNotFound
		}
		return storage.User{}, err
	}
	return u, nil
}

func scanSession(row pgx.Row) (storage.Session, error) {
	sess, err := scanSessionFrom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Session{}, storage.ErrNotFound
		}
		return storage.Session{}, err
	}
	return sess, nil
}

func scanSessionFrom(row rowScanner) (storage.Session, error) {
	var sess storage.Session
	err := row.Scan(&sess.TokenHash, &sess.UserID, &sess.Email, &sess.DisplayName,
		&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt,
		&sess.IPAddress, &sess.UserAgent, &sess.RevokedAt)
	if err != nil {
		return storage.Session{}, err
	}
	return sess, nil
}
