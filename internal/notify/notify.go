// Package notify announces finished translation jobs on a Redis pub/sub
// channel so that UIs and other workers can react without polling.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "translation_jobs"

// Event describes a job that reached a terminal state.
type Event struct {
	JobID      string    `json:"job_id"`
	StoreHash  string    `json:"store_hash"`
	JobType    string    `json:"job_type"`
	Status     string    `json:"status"`
	FileURL    string    `json:"file_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorCount int       `json:"error_count"`
	FinishedAt time.Time `json:"finished_at"`
}

// Redis publishes events with go-redis.
type Redis struct {
	rdb     *redis.Client
	channel string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr, password string, db int, channel string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{rdb: rdb, channel: channel}, nil
}

// Publish sends ev to the configured channel.
func (r *Redis) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Nop discards events. It is used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func encode(ev Event) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return string(b), nil
}
