package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBackend(client)
}

func newBadgerBackend(t *testing.T) *BadgerBackend {
	t.Helper()
	b, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"redis":  func(t *testing.T) Backend { return newRedisBackend(t) },
		"badger": func(t *testing.T) Backend { return newBadgerBackend(t) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()

			_, err := b.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Set(ctx, "k", []byte(`[1,2]`)))
			got, err := b.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(got))

			require.NoError(t, b.Set(ctx, "k", []byte(`[]`)))
			got, err = b.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "gentrack:user-1:background_generations", Key("user-1", JobsKey))
	assert.Equal(t, "gentrack:default:generation_completed_kinds", Key("", NoticeKindsKey))
}
