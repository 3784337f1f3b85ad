package credentials

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseRepository(t *testing.T, repo UserRepository) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, repo.Create(ctx, User{Username: "alice", PasswordHash: "h1"}))
	assert.ErrorIs(t, repo.Create(ctx, User{Username: "alice", PasswordHash: "h2"}), ErrUserExists)

	u, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, User{Username: "alice", PasswordHash: "h1"}, u)
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestRedisRepository(t *testing.T) {
	url := os.Getenv("STOMPD_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STOMPD_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	key := "stompd:test:" + uuid.NewString()
	defer client.Del(ctx, key)

	exerciseRepository(t, NewRedisRepository(client, key))
}

func TestConnectRedisBadURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
