package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	generalDomain "github.com/sakashimaa/bookshop/pkg/domain"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type EventPublisher interface {
	ProduceMessage(ctx context.Context, topic string, key string, message any) error
}

type DispatcherService interface {
	Pack(ctx context.Context, event *generalDomain.OrderAcceptedEvent) int64
	Label(ctx context.Context, orderID int64) *generalDomain.OrderDispatchedEvent
	PackAndLabel(ctx context.Context, event *generalDomain.OrderAcceptedEvent) *generalDomain.OrderDispatchedEvent
	// Dispatch packs and labels the order and announces it. A publish failure
	// is returned so the accepted event is delivered again.
	Dispatch(ctx context.Context, event *generalDomain.OrderAcceptedEvent) error
}

type dispatcherService struct {
	publisher  EventPublisher
	logger     *zap.Logger
	tracer     trace.Tracer
	newLabel   func() string
	dispatched prometheus.Counter
}

func NewDispatcherService(publisher EventPublisher, logger *zap.Logger, registerer prometheus.Registerer) DispatcherService {
	return &dispatcherService{
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("service/dispatcher_service"),
		newLabel:  func() string { return uuid.NewString() },
		dispatched: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_orders_dispatched_total",
			Help: "Orders packed, labeled and announced as dispatched.",
		}),
	}
}

func (s *dispatcherService) Pack(ctx context.Context, event *generalDomain.OrderAcceptedEvent) int64 {
	mylogger.Info(
		ctx,
		s.logger,
		"Order packed",
		zap.Int64("order_id", event.OrderID),
	)

	return event.OrderID
}

func (s *dispatcherService) Label(ctx context.Context, orderID int64) *generalDomain.OrderDispatchedEvent {
	mylogger.Info(
		ctx,
		s.logger,
		"Order labeled",
		zap.Int64("order_id", orderID),
		zap.String("tracking_label", s.newLabel()),
	)

	return &generalDomain.OrderDispatchedEvent{OrderID: orderID}
}

func (s *dispatcherService) PackAndLabel(ctx context.Context, event *generalDomain.OrderAcceptedEvent) *generalDomain.OrderDispatchedEvent {
	return s.Label(ctx, s.Pack(ctx, event))
}

func (s *dispatcherService) Dispatch(ctx context.Context, event *generalDomain.OrderAcceptedEvent) error {
	ctx, span := s.tracer.Start(ctx, "DispatcherService.Dispatch")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", event.OrderID),
	)

	dispatched := s.PackAndLabel(ctx, event)

	err := s.publisher.ProduceMessage(
		ctx,
		generalDomain.TopicOrderDispatched,
		strconv.FormatInt(dispatched.OrderID, 10),
		dispatched,
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to publish order dispatched event",
			zap.Int64("order_id", dispatched.OrderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to publish order dispatched event: %w", err)
	}

	s.dispatched.Inc()

	return nil
}
