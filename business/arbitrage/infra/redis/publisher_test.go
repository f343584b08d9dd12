package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

type recordingPubSub struct {
	channel string
	message []byte
	err     error
}

func (r *recordingPubSub) Publish(_ context.Context, channel string, message any) *goredis.IntCmd {
	r.channel = channel
	r.message, _ = message.([]byte)
	return goredis.NewIntResult(1, r.err)
}

func TestPublisher_Publish(t *testing.T) {
	tests := []struct {
		name        string
		channel     string
		err         error
		wantChannel string
		wantErr     bool
	}{
		{name: "default_channel", wantChannel: DefaultChannel},
		{name: "custom_channel", channel: "alerts", wantChannel: "alerts"},
		{name: "redis_down", err: errors.New("connection refused"), wantChannel: DefaultChannel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rps := &recordingPubSub{err: tt.err}
			p := newPublisher(rps, tt.channel)

			ev := domain.ExecutionEvent{
				Type:     domain.EventExecutionSucceeded,
				Record:   domain.ExecutionRecord{ID: "exec-1", Status: domain.StatusSucceeded},
				Pair:     "WETH-USDC",
				Expected: decimal.NewFromInt(56),
			}
			err := p.Publish(context.Background(), ev)
			if rps.channel != tt.wantChannel {
				t.Errorf("channel = %q, want %q", rps.channel, tt.wantChannel)
			}
			if tt.wantErr {
				if !apperror.HasCode(err, apperror.CodeEventPublishFailed) {
					t.Fatalf("Publish() error = %v, want CodeEventPublishFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Publish() error = %v", err)
			}

			var got domain.ExecutionEvent
			if err := json.Unmarshal(rps.message, &got); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if got.Type != ev.Type || got.Record.ID != "exec-1" {
				t.Errorf("payload = %+v", got)
			}
		})
	}
}
