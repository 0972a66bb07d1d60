package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/brain/internal/core"
)

type TokenRepo struct {
	db  *DB
	now core.Clock
}

func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db, now: time.Now}
}

func (r *TokenRepo) GetToken(ctx context.Context, userID string) (core.GoogleToken, error) {
	var (
		tok                  core.GoogleToken
		expiresAt            sql.NullTime
		createdAt, updatedAt sql.NullTime
	)

	err := r.db.queryRow(ctx, r.db,
		`SELECT id, user_id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM google_tokens WHERE user_id = ?`,
		userID,
	).Scan(&tok.ID, &tok.UserID, &tok.AccessToken, &tok.RefreshToken, &expiresAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GoogleToken{}, core.ErrTokenMissing
	}
	if err != nil {
		return core.GoogleToken{}, fmt.Errorf("failed to load token: %w", err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		tok.ExpiresAt = &t
	}
	tok.CreatedAt = createdAt.Time.UTC()
	tok.UpdatedAt = updatedAt.Time.UTC()
	return tok, nil
}

func (r *TokenRepo) UpsertToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt *time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := r.now().UTC()
	if err := ensureUser(ctx, r.db, tx, userID, now); err != nil {
		return err
	}

	_, err = r.db.exec(ctx, tx,
		`INSERT INTO google_tokens (user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		     access_token = excluded.access_token,
		     refresh_token = excluded.refresh_token,
		     expires_at = excluded.expires_at,
		     updated_at = excluded.updated_at`,
		userID, accessToken, refreshToken, nullableTime(expiresAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}

	return tx.Commit()
}

// UpdateRefreshed is a compare-and-swap on the refresh token the caller
// exchanged, so a grant stored meanwhile is never overwritten.
func (r *TokenRepo) UpdateRefreshed(ctx context.Context, userID, exchanged string, tok core.RefreshedToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := r.db.exec(ctx, tx,
		`UPDATE google_tokens
		 SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		 WHERE user_id = ? AND refresh_token = ?`,
		tok.AccessToken, tok.RefreshToken, tok.ExpiresAt.UTC(), r.now().UTC(), userID, exchanged,
	)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := r.db.queryRow(ctx, tx, `SELECT 1 FROM google_tokens WHERE user_id = ?`, userID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrTokenMissing
		}
		if err != nil {
			return fmt.Errorf("failed to check token: %w", err)
		}
		return core.ErrTokenSuperseded
	}

	return tx.Commit()
}

func (r *TokenRepo) DeleteToken(ctx context.Context, userID string) error {
	if _, err := r.db.exec(ctx, r.db, `DELETE FROM google_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// ListConnectedUsers returns every user with stored credentials, sorted.
func (r *TokenRepo) ListConnectedUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM google_tokens ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
