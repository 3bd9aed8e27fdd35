package database

import (
	"context"
	"database/sql"
	"fmt"
)

const userColumns = "id, email, first_name, last_name, profile_image_url, created_at, updated_at"

func (s *SQLDatabase) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

// UpsertUser inserts the user or refreshes the profile fields of an existing
// one. An email is unique, so a stale copy held by another user is released.
func (s *SQLDatabase) UpsertUser(ctx context.Context, user User) (*User, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	now := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if user.Email != "" {
			if _, err := s.exec(ctx, tx, "UPDATE users SET email = NULL, updated_at = ? WHERE email = ? AND id <> ?",
				now, user.Email, user.ID); err != nil {
				return err
			}
		}
		_, err := s.exec(ctx, tx, `INSERT INTO users (id, email, first_name, last_name, profile_image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			profile_image_url = excluded.profile_image_url,
			updated_at = excluded.updated_at`,
			user.ID, emptyAsNull(user.Email), emptyAsNull(user.FirstName), emptyAsNull(user.LastName),
			emptyAsNull(user.ProfileImageURL), now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetUser(ctx, user.ID)
}

func scanUser(row scanner) (*User, error) {
	var (
		user                             User
		email, first, last, profileImage sql.NullString
		createdAt, updatedAt             string
	)
	if err := row.Scan(&user.ID, &email, &first, &last, &profileImage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	user.Email = email.String
	user.FirstName = first.String
	user.LastName = last.String
	user.ProfileImageURL = profileImage.String
	user.CreatedAt = parseTime(createdAt)
	user.UpdatedAt = parseTime(updatedAt)
	return &user, nil
}
