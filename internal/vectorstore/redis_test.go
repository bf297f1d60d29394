// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vectorstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/geolocate/pkg/types"
)

func TestEncodeDecode(t *testing.T) {
	vec := []float64{0.5, -0.25, 1, 0, 0.1}
	b := Encode(vec)
	assert.Len(t, b, 20)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, got, len(vec))
	for i := range vec {
		assert.InDelta(t, vec[i], got[i], 1e-7)
	}
}

func TestDecodeRejectsBadBlobs(t *testing.T) {
	for _, b := range [][]byte{nil, {1, 2, 3}} {
		_, err := Decode(b)
		assert.ErrorIs(t, err, types.ErrMalformedResponse)
	}
}

func TestKeyIsNamespacedByModel(t *testing.T) {
	a := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "clip-b32", 0)
	b := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "clip-l14", 0)
	defer a.Close()
	defer b.Close()

	assert.Equal(t, "geolocate:emb:clip-b32:abc", a.Key("abc"))
	assert.NotEqual(t, a.Key("abc"), b.Key("abc"))
}

func TestOpenWithoutAddress(t *testing.T) {
	r, err := Open(context.Background(), types.RedisConfig{}, "m")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestOpenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, types.RedisConfig{Addr: "127.0.0.1:1"}, "m")
	assert.Error(t, err)
}

// TestRoundTrip runs against a live server named by GEOLOCATE_TEST_REDIS.
func TestRoundTrip(t *testing.T) {
	addr := os.Getenv("GEOLOCATE_TEST_REDIS")
	if addr == "" {
		t.Skip("GEOLOCATE_TEST_REDIS not set")
	}
	ctx := context.Background()
	r, err := Open(ctx, types.RedisConfig{Addr: addr, TTL: time.Minute}, "test-"+t.Name())
	require.NoError(t, err)
	defer r.Close()

	_, ok, err := r.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Save(ctx, "img", []float64{0.6, 0.8}))
	got, ok, err := r.Load(ctx, "img")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, got, 1e-6)
}
