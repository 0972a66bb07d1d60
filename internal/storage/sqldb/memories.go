package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/brain/internal/core"
)

// MemoryRepo is the append-only source of truth for memory records. The
// vector index is rebuilt from it.
type MemoryRepo struct {
	db  *DB
	now core.Clock
}

func NewMemoryRepo(db *DB) *MemoryRepo {
	return &MemoryRepo{db: db, now: time.Now}
}

func (r *MemoryRepo) AddMemory(ctx context.Context, rec core.MemoryRecord) (core.MemoryRecord, error) {
	vecBlob, err := serializeVector(rec.Embedding)
	if err != nil {
		return core.MemoryRecord{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.MemoryRecord{}, err
	}
	defer tx.Rollback()

	// memories reference users, first contact creates the account
	if err := ensureUser(ctx, r.db, tx, rec.UserID, r.now().UTC()); err != nil {
		return core.MemoryRecord{}, err
	}

	err = r.db.queryRow(ctx, tx,
		`INSERT INTO memories (user_id, content, source, intent, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		rec.UserID, rec.Content, string(rec.Source), rec.Intent, vecBlob, rec.CreatedAt.UTC(),
	).Scan(&rec.ID)
	if err != nil {
		return core.MemoryRecord{}, fmt.Errorf("failed to insert memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.MemoryRecord{}, err
	}

	return rec, nil
}

// ListMemories returns the newest records first.
func (r *MemoryRepo) ListMemories(ctx context.Context, userID string, limit int) ([]core.MemoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT id, user_id, content, source, intent, embedding, created_at
		 FROM memories
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`),
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var out []core.MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *MemoryRepo) CountMemories(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.queryRow(ctx, r.db, `SELECT COUNT(*) FROM memories WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

func (r *MemoryRepo) ScanMemories(ctx context.Context, fn func(core.MemoryRecord) error) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, content, source, intent, embedding, created_at
		 FROM memories
		 ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("failed to scan memories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (core.MemoryRecord, error) {
	var (
		rec    core.MemoryRecord
		source string
		blob   []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Content, &source, &rec.Intent, &blob, &rec.CreatedAt); err != nil {
		return core.MemoryRecord{}, fmt.Errorf("failed to scan memory: %w", err)
	}

	vec, err := deserializeVector(blob)
	if err != nil {
		return core.MemoryRecord{}, fmt.Errorf("memory %d: %w", rec.ID, err)
	}
	rec.Embedding = vec
	rec.Source = core.MemorySource(source)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
