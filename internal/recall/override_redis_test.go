package recall

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set SELFRECALL_TEST_REDIS=localhost:6379 to run against a live server.
func newTestRedisClient(t *testing.T) (*redis.Client, string) {
	t.Helper()
	addr := os.Getenv("SELFRECALL_TEST_REDIS")
	if addr == "" {
		t.Skip("SELFRECALL_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "selfrecall-test:" + t.Name() + ":"

	wipe := func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	wipe()
	t.Cleanup(func() {
		wipe()
		_ = client.Close()
	})
	return client, prefix
}

func TestRedisOverrides_SetTakePeek(t *testing.T) {
	ctx := context.Background()
	client, prefix := newTestRedisClient(t)
	r := NewRedisOverrides(client, prefix, time.Minute)

	require.NoError(t, r.Set(ctx, groupKey, 5*time.Second))
	d, ok, err := r.Peek(ctx, groupKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	d, ok, err = r.Take(ctx, groupKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	_, ok, err = r.Take(ctx, groupKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisOverrides_TakeSeesOtherInstance(t *testing.T) {
	ctx := context.Background()
	client, prefix := newTestRedisClient(t)
	a := NewRedisOverrides(client, prefix, time.Minute)
	b := NewRedisOverrides(client, prefix, time.Minute)

	require.NoError(t, a.Set(ctx, groupKey, 7*time.Second))
	d, ok, err := b.Take(ctx, groupKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)
}

func TestRedisOverrides_ClearOnlyOwnEntries(t *testing.T) {
	ctx := context.Background()
	client, prefix := newTestRedisClient(t)
	a := NewRedisOverrides(client, prefix, time.Minute)
	b := NewRedisOverrides(client, prefix, time.Minute)

	require.NoError(t, a.Set(ctx, groupKey, 5*time.Second))
	require.NoError(t, b.Set(ctx, privateKey, 9*time.Second))

	// b shuts down
	require.NoError(t, b.Clear(ctx))

	_, ok, err := a.Peek(ctx, privateKey)
	require.NoError(t, err)
	assert.False(t, ok, "b's own override should be gone")

	d, ok, err := a.Peek(ctx, groupKey)
	require.NoError(t, err)
	assert.True(t, ok, "a's override must survive b's shutdown")
	assert.Equal(t, 5*time.Second, d)
}

func TestRedisOverrides_ClearSkipsReplacedEntry(t *testing.T) {
	ctx := context.Background()
	client, prefix := newTestRedisClient(t)
	a := NewRedisOverrides(client, prefix, time.Minute)
	b := NewRedisOverrides(client, prefix, time.Minute)

	require.NoError(t, a.Set(ctx, groupKey, 5*time.Second))
	require.NoError(t, b.Set(ctx, groupKey, 8*time.Second)) // last write wins

	require.NoError(t, a.Clear(ctx))

	d, ok, err := b.Peek(ctx, groupKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 8*time.Second, d)
}

func TestRedisOverrides_DecodeValue(t *testing.T) {
	r := NewRedisOverrides(nil, "", 0)

	d, ok, err := r.result("5000|9b2f", nil, "take")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	d, ok, err = r.result("3000", nil, "take")
	require.NoError(t, err, "values without an instance suffix still decode")
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok, err = r.result("", redis.Nil, "peek")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = r.result("soon|9b2f", nil, "peek")
	assert.Error(t, err)
}
