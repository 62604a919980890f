// Package intake feeds job requests published on a message queue into the engine.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/procengine/backoff"
	"github.com/RezaEskandarii/procengine/internal/message_broaker"
	"github.com/RezaEskandarii/procengine/types"
)

// Submitter is the part of the engine the consumer needs.
type Submitter interface {
	EnqueueJob(ctx context.Context, req types.Request) types.Response
}

// DefaultRequeueBackoff paces redelivery of requests the engine bounced back.
func DefaultRequeueBackoff() backoff.Strategy {
	return backoff.NewExponential(time.Second, time.Minute, 0)
}

// Consumer reads one message at a time, so a full engine queue holds back
// consumption instead of piling up unacknowledged deliveries.
type Consumer struct {
	broker    message_broaker.MessageBroker
	submitter Submitter
	queue     string
	logger    *slog.Logger

	requeueBackoff backoff.Strategy
	// bounces counts retryable rejections in a row. Any other outcome resets it.
	bounces int
	wait    func(ctx context.Context, d time.Duration)
}

type Option func(*Consumer)

// WithRequeueBackoff sets how long the consumer holds a bounced request
// before handing it back to the queue.
func WithRequeueBackoff(s backoff.Strategy) Option {
	return func(c *Consumer) { c.requeueBackoff = s }
}

func NewConsumer(broker message_broaker.MessageBroker, submitter Submitter, queue string, logger *slog.Logger, opts ...Option) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		broker:         broker,
		submitter:      submitter,
		queue:          queue,
		logger:         logger.With("component", "intake", "queue", queue),
		requeueBackoff: DefaultRequeueBackoff(),
		wait:           sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run consumes until ctx is done or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.broker.Consume(ctx, c.queue)
	if err != nil {
		return err
	}
	c.logger.Info("consuming job requests")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("intake stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("delivery channel closed")
				return errors.New("intake: delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg message_broaker.Message) {
	var req types.Request
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		c.bounces = 0
		c.logger.Error("dropping malformed job request", "error", err)
		c.settle(msg, false, false)
		return
	}

	resp := c.submitter.EnqueueJob(ctx, req)
	switch {
	case resp.IsAccepted():
		c.bounces = 0
		c.logger.Debug("job request accepted", "job", req.Key)
		c.settle(msg, true, false)
	case resp.Retryable:
		// Requeued deliveries come straight back, so hold this one for a
		// growing delay first. The delivery stays unacknowledged meanwhile and
		// nothing else is consumed.
		c.bounces++
		delay := c.requeueBackoff.CalculateDelay(c.bounces)
		c.logger.Warn("job request bounced back to the queue",
			"job", req.Key, "reason", resp.Reason, "attempt", c.bounces, "delay", delay)
		c.wait(ctx, delay)
		c.settle(msg, false, true)
	default:
		c.bounces = 0
		c.logger.Error("job request rejected", "job", req.Key, "reason", resp.Reason)
		c.settle(msg, false, false)
	}
}

func (c *Consumer) settle(msg message_broaker.Message, ack, requeue bool) {
	var err error
	if ack {
		if msg.Ack != nil {
			err = msg.Ack()
		}
	} else if msg.Nack != nil {
		err = msg.Nack(requeue)
	}
	if err != nil {
		c.logger.Error("failed to settle delivery", "ack", ack, "requeue", requeue, "error", err)
	}
}
