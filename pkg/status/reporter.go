// Package status publishes undock reports to the supervisor.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-undock/pkg/hub"
	"github.com/teslashibe/go-undock/pkg/protocol"
	"github.com/teslashibe/go-undock/pkg/undock"
)

// Multi fans a report out to several reporters. Every reporter is called
// even if an earlier one fails; the errors are joined.
type Multi []undock.Reporter

// Report calls every reporter in order.
func (m Multi) Report(ctx context.Context, r undock.Report) error {
	var errs []error
	for _, rep := range m {
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogReporter writes reports to a logger. Terminal outcomes use the level
// matching their severity.
type LogReporter struct {
	Logger *slog.Logger
}

// Report logs r.
func (l LogReporter) Report(ctx context.Context, r undock.Report) error {
	args := []any{
		"run_id", r.RunID,
		"state", r.State.String(),
		"status", r.Outcome.Code().String(),
		"attempt", r.Attempt,
	}
	switch r.State {
	case undock.Succeeded:
		l.Logger.InfoContext(ctx, r.Outcome.Text(), args...)
	case undock.Failed:
		l.Logger.ErrorContext(ctx, r.Outcome.Text(), args...)
	case undock.Cancelled:
		l.Logger.WarnContext(ctx, r.Outcome.Text(), args...)
	default:
		l.Logger.DebugContext(ctx, r.Outcome.Text(), args...)
	}
	return nil
}

// RedisClient is the subset of the Redis client used for status.
type RedisClient interface {
	Pipeline() redis.Pipeliner
}

// RedisReporter publishes a GoalStatusArray on a channel and keeps the
// latest one under a key of the same name.
type RedisReporter struct {
	client  RedisClient
	channel string
}

// NewRedisReporter creates a reporter publishing on channel.
func NewRedisReporter(client RedisClient, channel string) *RedisReporter {
	return &RedisReporter{client: client, channel: channel}
}

// Report publishes r.
func (p *RedisReporter) Report(ctx context.Context, r undock.Report) error {
	data, err := json.Marshal(r.GoalStatus())
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.channel, data, 0)
	pipe.Publish(ctx, p.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish status on %s: %w", p.channel, err)
	}
	return nil
}

// Broadcaster is the subset of a hub.Hub used for status.
type Broadcaster interface {
	Broadcast(msg hub.Message)
}

// HubReporter wraps each report in a status envelope and broadcasts it to
// websocket watchers.
type HubReporter struct {
	hub Broadcaster
}

// NewHubReporter creates a reporter broadcasting on b.
func NewHubReporter(b Broadcaster) *HubReporter {
	return &HubReporter{hub: b}
}

// Report broadcasts r. Slow watchers are dropped by the hub, never the loop.
func (h *HubReporter) Report(ctx context.Context, r undock.Report) error {
	msg, err := protocol.NewMessage(protocol.TypeStatus, r)
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	h.hub.Broadcast(hub.NewJSONMessage(data))
	return nil
}
