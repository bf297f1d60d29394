// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vectorstore keeps image embeddings in Redis so repeated runs over
// the same area skip the encoder.
package vectorstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/geolocate/pkg/types"
)

// Redis stores vectors as little-endian float32 blobs under
// "geolocate:emb:<model>:<image id>".
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Open connects to the configured server. It returns nil, nil when no
// address is configured.
func Open(ctx context.Context, cfg types.RedisConfig, model string) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return New(client, model, cfg.TTL), nil
}

// New wraps an existing client. Keys are namespaced by model so vectors from
// different encoders never mix.
func New(client *redis.Client, model string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: "geolocate:emb:" + model + ":", ttl: ttl}
}

// Key returns the Redis key for an image identity.
func (r *Redis) Key(id string) string {
	return r.prefix + id
}

// Load returns the stored vector for key.
func (r *Redis) Load(ctx context.Context, key string) ([]float64, bool, error) {
	b, err := r.client.Get(ctx, r.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading embedding: %w", err)
	}
	vec, err := Decode(b)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Save stores vec under key with the configured TTL (0 keeps it forever).
func (r *Redis) Save(ctx context.Context, key string, vec []float64) error {
	if err := r.client.Set(ctx, r.Key(key), Encode(vec), r.ttl).Err(); err != nil {
		return fmt.Errorf("saving embedding: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Encode packs vec as little-endian float32.
func Encode(vec []float64) []byte {
	b := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
	}
	return b
}

// Decode unpacks a blob written by Encode.
func Decode(b []byte) ([]float64, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: embedding blob of %d bytes", types.ErrMalformedResponse, len(b))
	}
	vec := make([]float64, len(b)/4)
	for i := range vec {
		vec[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return vec, nil
}
