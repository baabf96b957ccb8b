package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	generalDomain "github.com/sakashimaa/bookshop/pkg/domain"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PublicationRepository interface {
	FindUnannounced(ctx context.Context, tx pgx.Tx, grace time.Duration, batchSize int) ([]int64, error)
	MarkPublishedTx(ctx context.Context, tx pgx.Tx, orderID int64) error
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic string, key string, message any) error
}

type Config struct {
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
}

// Reconciler re-announces accepted orders whose OrderAccepted event never
// made it onto the channel.
type Reconciler struct {
	db            TxBeginner
	repo          PublicationRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	cfg           Config
	tracer        trace.Tracer
}

func NewReconciler(
	db TxBeginner,
	repo PublicationRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	cfg Config,
) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	return &Reconciler{
		db:            db,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		cfg:           cfg,
		tracer:        otel.Tracer("order-reconciler"),
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		r.logger,
		"Starting order reconciler",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("grace", r.cfg.Grace),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(
				ctx,
				r.logger,
				"Order reconciler stopping",
			)

			return
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				mylogger.Error(
					ctx,
					r.logger,
					"Error reconciling accepted orders",
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessBatch runs one sweep and reports how many orders were announced.
func (r *Reconciler) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.ProcessBatch")
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)

		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				r.logger,
				"Reconciler failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	orderIDs, err := r.repo.FindUnannounced(ctx, tx, r.cfg.Grace, r.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)

		return 0, err
	}

	if len(orderIDs) == 0 {
		return 0, nil
	}

	mylogger.Warn(
		ctx,
		r.logger,
		"Found accepted orders without announcement",
		zap.Int("count", len(orderIDs)),
	)

	announced := 0
	for _, orderID := range orderIDs {
		err := r.kafkaProducer.ProduceMessage(
			ctx,
			generalDomain.TopicOrderAccepted,
			strconv.FormatInt(orderID, 10),
			&generalDomain.OrderAcceptedEvent{OrderID: orderID},
		)
		if err != nil {
			// Left without a ledger row, so the next tick picks it up again.
			mylogger.Error(
				ctx,
				r.logger,
				"Reconciler produce message failed",
				zap.Int64("order_id", orderID),
				zap.Error(err),
			)

			continue
		}

		if err := r.repo.MarkPublishedTx(ctx, tx, orderID); err != nil {
			span.RecordError(err)

			return announced, err
		}

		announced++
	}

	span.SetAttributes(
		attribute.Int("announced", announced),
	)

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)

		return 0, fmt.Errorf("error committing reconciliation: %w", err)
	}

	return announced, nil
}
