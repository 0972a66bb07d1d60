package core

import (
	"context"
	"time"
)

type UserRepository interface {
	EnsureUser(ctx context.Context, userID string) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	SetSubscription(ctx context.Context, userID string, status SubscriptionStatus) error
	// DeleteUser removes the user together with their token and memories.
	DeleteUser(ctx context.Context, userID string) error
}

type TokenRepository interface {
	// GetToken returns ErrTokenMissing when the user has no record.
	GetToken(ctx context.Context, userID string) (GoogleToken, error)
	UpsertToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt *time.Time) error
	// UpdateRefreshed overwrites the credentials of the record whose refresh
	// token is still exchanged. It returns ErrTokenMissing when the record
	// vanished and ErrTokenSuperseded when a new grant replaced it.
	UpdateRefreshed(ctx context.Context, userID, exchanged string, tok RefreshedToken) error
	DeleteToken(ctx context.Context, userID string) error
}

type MemoryRepository interface {
	AddMemory(ctx context.Context, rec MemoryRecord) (MemoryRecord, error)
	ListMemories(ctx context.Context, userID string, limit int) ([]MemoryRecord, error)
	CountMemories(ctx context.Context, userID string) (int, error)
	// ScanMemories streams every record, oldest first.
	ScanMemories(ctx context.Context, fn func(MemoryRecord) error) error
}

// VectorIndex holds embeddings partitioned by user.
type VectorIndex interface {
	Upsert(ctx context.Context, rec MemoryRecord) error
	Query(ctx context.Context, userID string, vector []float32, k int) ([]ScoredMemory, error)
	Drop(ctx context.Context, userID string) error
}
