package reservation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReserver_SecondClaimLoses(t *testing.T) {
	r := NewMemoryReserver()
	ctx := context.Background()

	ok, err := r.Reserve(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Reserve(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryReserver_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	r := NewMemoryReserver()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := r.Reserve(context.Background(), 7); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisReserver_SurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	r := NewRedisReserverFromClient(client, 0, "test")
	defer func() { _ = r.Close() }()

	_, err := r.Reserve(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve 1")
}
