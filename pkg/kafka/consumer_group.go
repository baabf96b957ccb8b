package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HandlerFunc processes one delivery attempt. A non-nil error leaves the
// offset uncommitted so the message is delivered again.
type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

type ConsumerGroup struct {
	brokers      []string
	groupID      string
	topics       []string
	handlerFunc  HandlerFunc
	logger       *zap.Logger
	retryBackoff time.Duration
}

type Option func(*ConsumerGroup)

// WithRetryBackoff sets the initial pause before rejoining after a failed delivery.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *ConsumerGroup) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

func NewConsumerGroup(
	brokers []string,
	groupID string,
	topics []string,
	handlerFunc HandlerFunc,
	logger *zap.Logger,
	opts ...Option,
) *ConsumerGroup {
	c := &ConsumerGroup{
		brokers:      brokers,
		groupID:      groupID,
		topics:       topics,
		handlerFunc:  handlerFunc,
		logger:       logger,
		retryBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	return config
}

// Run blocks until ctx is cancelled.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, NewConsumerConfig())
	if err != nil {
		return fmt.Errorf("error creating consumer group %s: %w", c.groupID, err)
	}

	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Error closing consumer group", zap.Error(err))
		}
	}()

	go func() {
		for err := range group.Errors() {
			mylogger.Error(ctx, c.logger, "Consumer group error", zap.String("group_id", c.groupID), zap.Error(err))
		}
	}()

	handler := &saramaHandler{
		handler: c.handlerFunc,
		logger:  c.logger,
		tracer:  otel.Tracer("pkg/kafka/consumer"),
	}

	return c.consumeLoop(ctx, group, handler)
}

type groupConsumer interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
}

// consumeLoop rejoins the group after every session. A session that failed,
// either in the handler or in Consume itself, is followed by a growing pause.
func (c *ConsumerGroup) consumeLoop(ctx context.Context, group groupConsumer, handler *saramaHandler) error {
	pause := backoff.NewExponentialBackOff()
	pause.InitialInterval = c.retryBackoff
	pause.MaxInterval = 30 * time.Second
	pause.MaxElapsedTime = 0

	for {
		err := group.Consume(ctx, c.topics, handler)

		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer", zap.String("group_id", c.groupID))
			return nil
		}

		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return err
		}

		handlerFailed := handler.failed.Swap(false)
		if err == nil && !handlerFailed {
			pause.Reset()
			continue
		}

		wait := pause.NextBackOff()
		if err != nil {
			mylogger.Error(ctx, c.logger, "Error consuming in consumer loop", zap.Duration("retry_in", wait), zap.Error(err))
		} else {
			mylogger.Warn(ctx, c.logger, "Delivery failed, rejoining group for redelivery", zap.Duration("after", wait))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

type saramaHandler struct {
	handler HandlerFunc
	logger  *zap.Logger
	tracer  trace.Tracer
	failed  atomic.Bool
}

func (h *saramaHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *saramaHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *saramaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := h.process(session.Context(), msg); err != nil {
				h.failed.Store(true)

				// Returning ends the session; the group resumes from the last marked offset.
				return fmt.Errorf("process %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}

			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *saramaHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx, span := h.startSpan(ctx, msg)
	defer span.End()

	err := h.handler(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		mylogger.Error(
			ctx,
			h.logger,
			"Failed to process message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}

	return err
}

func (h *saramaHandler) startSpan(ctx context.Context, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		if header == nil {
			continue
		}
		carrier[string(header.Key)] = string(header.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	return h.tracer.Start(ctx, "kafka_process "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", int(msg.Partition)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
}
