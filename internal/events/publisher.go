// Package events mirrors run and stage status events to Redis for the
// external dashboards. The mirror is optional and strictly best-effort: a
// publish failure is logged and never affects the run.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher publishes orchestrator events to a Redis channel.
type Publisher struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

// NewPublisher connects to Redis at addr and publishes to channel.
func NewPublisher(addr, channel string, log *slog.Logger) *Publisher {
	return &Publisher{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		log:     log,
	}
}

// RunStatus publishes a run-level status transition.
func (p *Publisher) RunStatus(ctx context.Context, runID, status string) {
	p.publish(ctx, map[string]any{
		"type":   "run_status",
		"run_id": runID,
		"status": status,
	})
}

// StageStatus publishes a stage-level status transition.
func (p *Publisher) StageStatus(ctx context.Context, runID, stage, status string, duration time.Duration) {
	p.publish(ctx, map[string]any{
		"type":        "stage_status",
		"run_id":      runID,
		"stage":       stage,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) publish(ctx context.Context, data map[string]any) {
	data["timestamp"] = time.Now().UTC().UnixMilli()
	raw, err := json.Marshal(data)
	if err != nil {
		p.log.Error("encode event", "error", err.Error())
		return
	}
	if err := p.client.Publish(ctx, p.channel, raw).Err(); err != nil {
		p.log.Warn("publish event", "channel", p.channel, "error", err.Error())
	}
}
