package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/brain/internal/core"
)

type UserRepo struct {
	db  *DB
	now core.Clock
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db, now: time.Now}
}

func ensureUser(ctx context.Context, db *DB, q execer, userID string, now time.Time) error {
	_, err := db.exec(ctx, q,
		`INSERT INTO users (user_id, subscription_status, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, string(core.SubscriptionFree), now,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

func (r *UserRepo) EnsureUser(ctx context.Context, userID string) (core.User, error) {
	if err := ensureUser(ctx, r.db, r.db, userID, r.now().UTC()); err != nil {
		return core.User{}, err
	}
	return r.GetUser(ctx, userID)
}

func (r *UserRepo) GetUser(ctx context.Context, userID string) (core.User, error) {
	var (
		u      core.User
		status string
	)
	err := r.db.queryRow(ctx, r.db,
		`SELECT user_id, subscription_status, created_at FROM users WHERE user_id = ?`,
		userID,
	).Scan(&u.UserID, &status, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	u.SubscriptionStatus = core.SubscriptionStatus(status)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *UserRepo) SetSubscription(ctx context.Context, userID string, status core.SubscriptionStatus) error {
	switch status {
	case core.SubscriptionFree, core.SubscriptionActive, core.SubscriptionCancelled:
	default:
		return fmt.Errorf("subscription status %q: %w", status, core.ErrInvalidInput)
	}

	res, err := r.db.exec(ctx, r.db,
		`UPDATE users SET subscription_status = ? WHERE user_id = ?`, string(status), userID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes memories, token and user row in one transaction.
func (r *UserRepo) DeleteUser(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var total int64
	for _, q := range []string{
		`DELETE FROM memories WHERE user_id = ?`,
		`DELETE FROM google_tokens WHERE user_id = ?`,
		`DELETE FROM users WHERE user_id = ?`,
	} {
		res, err := r.db.exec(ctx, tx, q, userID)
		if err != nil {
			return fmt.Errorf("failed to delete user data: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if total == 0 {
		return core.ErrUserNotFound
	}
	return nil
}
