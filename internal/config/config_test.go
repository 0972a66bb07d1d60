package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthConfig_Defaults(t *testing.T) {
	cfg := NewOAuthConfig(context.Background())

	assert.Equal(t, 60*time.Second, cfg.SafetyMargin)
	assert.Equal(t, 3, cfg.RetryConfig().MaxRetries+1)
	assert.Len(t, cfg.Scopes, 2)
	assert.False(t, cfg.Configured())
}

func TestMemoryConfig_Overrides(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", EmbeddingOpenAI)
	t.Setenv("EMBEDDING_DIMENSIONS", "1536")
	t.Setenv("MEMORY_RETRIEVAL_K", "8")

	cfg := NewMemoryConfig(context.Background())

	assert.Equal(t, EmbeddingOpenAI, cfg.EmbeddingProvider)
	assert.Equal(t, 1536, cfg.EmbeddingDims)
	assert.Equal(t, 8, cfg.RetrievalK)
}

func TestMemoryConfig_DimensionsFollowProvider(t *testing.T) {
	assert.Equal(t, 256, MemoryConfig{EmbeddingProvider: EmbeddingHashing}.Dimensions())
	assert.Equal(t, 1536, MemoryConfig{EmbeddingProvider: EmbeddingOpenAI}.Dimensions())
	assert.Equal(t, 512, MemoryConfig{EmbeddingProvider: EmbeddingOpenAI, EmbeddingDims: 512}.Dimensions())
}

func TestNotifyConfig(t *testing.T) {
	cfg := NewNotifyConfig(context.Background())
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 7, cfg.MorningHour)
	assert.Equal(t, 5*time.Minute, cfg.ReminderInterval)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.MorningHour = 24
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.ReminderLeadMax = bad.ReminderLeadMin
	assert.Error(t, bad.Validate())
}

func TestTelegramConfig_Whitelist(t *testing.T) {
	tests := []struct {
		name      string
		whitelist []int64
		userID    int64
		want      bool
	}{
		{name: "empty list allows everyone", whitelist: nil, userID: 42, want: true},
		{name: "listed user", whitelist: []int64{1, 42}, userID: 42, want: true},
		{name: "unlisted user", whitelist: []int64{1, 2}, userID: 42, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TelegramConfig{WhitelistedUsers: tt.whitelist}
			assert.Equal(t, tt.want, cfg.IsAuthorized(tt.userID))
		})
	}
}

func TestAppConfig_DSN(t *testing.T) {
	cfg := AppConfig{RuntimePath: "/tmp/brain"}
	assert.Equal(t, "/tmp/brain/brain.db", cfg.GetDSN())

	cfg.DatabaseURL = "postgres://brain@localhost/brain"
	assert.Equal(t, "postgres://brain@localhost/brain", cfg.GetDSN())

	cfg.TimeZone = "Not/AZone"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadEnv(context.Background(), dir), "missing file is fine")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BRAIN_TEST_VALUE=loaded\n"), 0o600))
	t.Setenv("BRAIN_TEST_VALUE", "")
	os.Unsetenv("BRAIN_TEST_VALUE")

	require.NoError(t, LoadEnv(context.Background(), dir))
	assert.Equal(t, "loaded", os.Getenv("BRAIN_TEST_VALUE"))
}
