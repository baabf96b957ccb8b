package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	generalDomain "github.com/sakashimaa/bookshop/pkg/domain"
	"github.com/sakashimaa/bookshop/pkg/kafka"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/services/order/internal/service"
	"go.uber.org/zap"
)

type Consumer struct {
	service service.OrderService
	logger  *zap.Logger
}

func NewConsumer(service service.OrderService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string, opts ...kafka.Option) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{generalDomain.TopicOrderDispatched},
		c.processMessage,
		c.logger,
		opts...,
	)

	return consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event generalDomain.OrderDispatchedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil || event.OrderID == 0 {
		// Redelivering a malformed record can never succeed.
		mylogger.Error(
			ctx,
			c.logger,
			"Skipping malformed order dispatched event",
			zap.Int64("offset", msg.Offset),
			zap.ByteString("value", msg.Value),
			zap.Error(err),
		)

		return nil
	}

	mylogger.Info(
		ctx,
		c.logger,
		"Order dispatched event received",
		zap.Int64("order_id", event.OrderID),
	)

	return c.service.HandleOrderDispatched(ctx, &event)
}
