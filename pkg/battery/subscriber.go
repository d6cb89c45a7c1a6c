package battery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"
)

// PubSub is the subset of the Redis client the subscriber needs.
type PubSub interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Subscriber feeds battery telemetry from a Redis channel into a Monitor.
type Subscriber struct {
	client  PubSub
	channel string
	monitor *Monitor
	logger  *slog.Logger
}

// NewSubscriber creates a subscriber for the given telemetry channel.
func NewSubscriber(client PubSub, channel string, monitor *Monitor, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		client:  client,
		channel: channel,
		monitor: monitor,
		logger:  logger.With("channel", channel),
	}
}

// Run keeps the subscription alive until ctx is done. A failed subscribe
// or a dropped channel is retried with exponential backoff, so losing the
// broker never ends the process; the monitor simply goes stale.
func (s *Subscriber) Run(ctx context.Context) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxInterval = 10 * time.Second
	expBackoff.MaxElapsedTime = 0 // retry forever

	operation := func() error {
		return s.consume(ctx, expBackoff.Reset)
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("battery telemetry unavailable", "retry_in", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), notify)

	samples, rejected, updated := s.monitor.Stats()
	s.logger.Info("battery telemetry subscription stopped",
		"samples", samples, "rejected", rejected, "last_sample", updated)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// consume subscribes once and handles messages until ctx is done or the
// subscription breaks. subscribed is called once the broker confirms.
func (s *Subscriber) consume(ctx context.Context, subscribed func()) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for confirmation that the subscription exists before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	subscribed()
	s.logger.Info("subscribed to battery telemetry")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription %s closed", s.channel)
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *Subscriber) handle(payload string) {
	before := s.monitor.ChargingStopped()
	if err := s.monitor.HandlePayload([]byte(payload)); err != nil {
		s.logger.Warn("ignoring malformed battery telemetry", "error", err)
		return
	}
	if after := s.monitor.ChargingStopped(); after != before {
		status, _ := s.monitor.Status()
		s.logger.Info("charging state changed", "stopped", after, "status", status.String())
	}
}
