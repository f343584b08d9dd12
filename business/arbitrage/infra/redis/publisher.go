// Package redis publishes execution events on a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "arb:executions"

var _ app.EventPublisher = (*Publisher)(nil)

// Config holds connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type pubsub interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// Publisher implements app.EventPublisher.
type Publisher struct {
	rdb     pubsub
	client  *goredis.Client
	channel string
}

// NewPublisher connects to Redis and verifies connectivity.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("redis ping "+cfg.Addr))
	}
	p := newPublisher(rdb, cfg.Channel)
	p.client = rdb
	return p, nil
}

func newPublisher(rdb pubsub, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{rdb: rdb, channel: channel}
}

// Publish sends ev as JSON.
func (p *Publisher) Publish(ctx context.Context, ev domain.ExecutionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return apperror.New(apperror.CodeEventPublishFailed,
			apperror.WithCause(err),
			apperror.WithContext("marshal "+ev.Type))
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return apperror.New(apperror.CodeEventPublishFailed,
			apperror.WithCause(err),
			apperror.WithContext("publish to "+p.channel))
	}
	return nil
}

// Ping is used as a health check.
func (p *Publisher) Ping(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Ping(ctx).Err()
}

// Close releases the connection.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
