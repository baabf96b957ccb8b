package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	generalDomain "github.com/sakashimaa/bookshop/pkg/domain"
	"github.com/sakashimaa/bookshop/pkg/kafka"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/services/dispatcher/internal/service"
	"go.uber.org/zap"
)

type Consumer struct {
	service service.DispatcherService
	logger  *zap.Logger
}

func NewConsumer(service service.DispatcherService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string, opts ...kafka.Option) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{generalDomain.TopicOrderAccepted},
		c.processMessage,
		c.logger,
		opts...,
	)

	return consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event generalDomain.OrderAcceptedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil || event.OrderID == 0 {
		mylogger.Error(
			ctx,
			c.logger,
			"Skipping malformed order accepted event",
			zap.Int64("offset", msg.Offset),
			zap.ByteString("value", msg.Value),
			zap.Error(err),
		)

		return nil
	}

	mylogger.Info(
		ctx,
		c.logger,
		"Order accepted event received",
		zap.Int64("order_id", event.OrderID),
	)

	return c.service.Dispatch(ctx, &event)
}
