package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	generalDomain "github.com/sakashimaa/bookshop/pkg/domain"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/services/order/internal/domain"
	"github.com/sakashimaa/bookshop/services/order/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrInvalidOrder = errors.New("invalid order request")
	ErrEventPublish = errors.New("order persisted but the accepted event could not be published")
)

// Two read-modify-write rounds; a second conflict goes back to the consumer for redelivery.
const maxDispatchAttempts = 2

type BookLookup interface {
	Lookup(ctx context.Context, isbn string) (*domain.Book, bool)
}

type EventPublisher interface {
	ProduceMessage(ctx context.Context, topic string, key string, message any) error
}

type PublicationRecorder interface {
	MarkPublished(ctx context.Context, orderID int64) error
}

type OrderService interface {
	SubmitOrder(ctx context.Context, isbn string, quantity int, owner string) (*domain.Order, error)
	ListOrders(ctx context.Context, owner string) ([]domain.Order, error)
	GetOrder(ctx context.Context, id int64, owner string) (*domain.Order, error)
	HandleOrderDispatched(ctx context.Context, event *generalDomain.OrderDispatchedEvent) error
}

type orderService struct {
	logger       *zap.Logger
	orderRepo    repository.OrderRepository
	publications PublicationRecorder
	books        BookLookup
	publisher    EventPublisher
	tracer       trace.Tracer

	submitted     *prometheus.CounterVec
	confirmations *prometheus.CounterVec
}

func NewOrderService(
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	publications PublicationRecorder,
	books BookLookup,
	publisher EventPublisher,
	registerer prometheus.Registerer,
) OrderService {
	factory := promauto.With(registerer)

	return &orderService{
		logger:       logger,
		orderRepo:    orderRepo,
		publications: publications,
		books:        books,
		publisher:    publisher,
		tracer:       otel.Tracer("order_service"),
		submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_submitted_total",
			Help: "Submitted orders by resulting status.",
		}, []string{"status"}),
		confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "order_dispatch_confirmations_total",
			Help: "Handled dispatch confirmations by result.",
		}, []string{"result"}),
	}
}

func (s *orderService) SubmitOrder(ctx context.Context, isbn string, quantity int, owner string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.SubmitOrder")
	defer span.End()

	isbn = strings.TrimSpace(isbn)
	span.SetAttributes(
		attribute.String("book_isbn", isbn),
		attribute.Int("quantity", quantity),
	)

	if isbn == "" || quantity <= 0 {
		return nil, fmt.Errorf("%w: isbn %q, quantity %d", ErrInvalidOrder, isbn, quantity)
	}

	var order *domain.Order
	if book, ok := s.books.Lookup(ctx, isbn); ok {
		order = domain.NewAcceptedOrder(book, quantity, owner)
	} else {
		order = domain.NewRejectedOrder(isbn, quantity, owner)
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to create order",
			zap.String("book_isbn", isbn),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
		attribute.String("status", string(order.Status)),
	)
	s.submitted.WithLabelValues(string(order.Status)).Inc()

	if order.Status != domain.OrderStatusAccepted {
		mylogger.Info(
			ctx,
			s.logger,
			"Order rejected, book not available",
			zap.Int64("order_id", order.ID),
			zap.String("book_isbn", isbn),
		)

		return order, nil
	}

	if err := s.announce(ctx, order.ID); err != nil {
		span.RecordError(err)

		return order, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order accepted",
		zap.Int64("order_id", order.ID),
		zap.String("book_isbn", isbn),
		zap.Int("quantity", quantity),
	)

	return order, nil
}

func (s *orderService) announce(ctx context.Context, orderID int64) error {
	event := &generalDomain.OrderAcceptedEvent{OrderID: orderID}

	err := s.publisher.ProduceMessage(ctx, generalDomain.TopicOrderAccepted, strconv.FormatInt(orderID, 10), event)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to publish order accepted event",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("%w: order %d: %v", ErrEventPublish, orderID, err)
	}

	// The event is out; a missing ledger row only means the sweep may announce it again.
	if err := s.publications.MarkPublished(ctx, orderID); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to record order publication",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}

	return nil
}

func (s *orderService) ListOrders(ctx context.Context, owner string) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.orderRepo.FindAllByOwner(ctx, owner)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, nil
}

func (s *orderService) GetOrder(ctx context.Context, id int64, owner string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrOrderNotFound) {
			span.RecordError(err)
		}

		return nil, err
	}

	if order.CreatedBy != owner {
		return nil, repository.ErrOrderNotFound
	}

	return order, nil
}

func (s *orderService) HandleOrderDispatched(ctx context.Context, event *generalDomain.OrderDispatchedEvent) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.HandleOrderDispatched")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", event.OrderID),
	)

	var err error
	for attempt := 1; attempt <= maxDispatchAttempts; attempt++ {
		var done bool
		done, err = s.markDispatched(ctx, event.OrderID)
		if done {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			break
		}

		mylogger.Warn(
			ctx,
			s.logger,
			"Version conflict while dispatching order",
			zap.Int64("order_id", event.OrderID),
			zap.Int("attempt", attempt),
		)
	}

	span.RecordError(err)
	s.confirmations.WithLabelValues("failed").Inc()

	return fmt.Errorf("failed to mark order %d dispatched: %w", event.OrderID, err)
}

// markDispatched runs one read-modify-write round. done reports that the
// confirmation needs no further work.
func (s *orderService) markDispatched(ctx context.Context, orderID int64) (done bool, err error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Dispatch confirmation for unknown order, dropping",
				zap.Int64("order_id", orderID),
			)
			s.confirmations.WithLabelValues("unknown").Inc()

			return true, nil
		}

		return false, err
	}

	readVersion := order.Version

	changed, err := order.Dispatch()
	if errors.Is(err, domain.ErrInvalidTransition) {
		mylogger.Error(
			ctx,
			s.logger,
			"Dispatch confirmation for order that cannot be dispatched, ignoring",
			zap.Int64("order_id", orderID),
			zap.String("status", string(order.Status)),
		)
		s.confirmations.WithLabelValues("ignored").Inc()

		return true, nil
	}

	if !changed {
		mylogger.Debug(
			ctx,
			s.logger,
			"Order already dispatched",
			zap.Int64("order_id", orderID),
			zap.Int("version", order.Version),
		)
		s.confirmations.WithLabelValues("duplicate").Inc()

		return true, nil
	}

	if err := s.orderRepo.UpdateStatus(ctx, order, readVersion); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.confirmations.WithLabelValues("unknown").Inc()

			return true, nil
		}

		return false, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order dispatched",
		zap.Int64("order_id", orderID),
		zap.Int("version", order.Version),
	)
	s.confirmations.WithLabelValues("dispatched").Inc()

	return true, nil
}
