package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PublicationRepository is the ledger of OrderAccepted announcements. It never
// touches the orders row, so recording a publication leaves the version alone.
type PublicationRepository interface {
	MarkPublished(ctx context.Context, orderID int64) error
	MarkPublishedTx(ctx context.Context, tx pgx.Tx, orderID int64) error
	// FindUnannounced locks up to batchSize accepted orders older than grace
	// that have no ledger entry. Rows locked by another sweeper are skipped.
	FindUnannounced(ctx context.Context, tx pgx.Tx, grace time.Duration, batchSize int) ([]int64, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type publicationRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPublicationRepository(pool *pgxpool.Pool, logger *zap.Logger) PublicationRepository {
	return &publicationRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("publication_repository"),
	}
}

func (r *publicationRepo) MarkPublished(ctx context.Context, orderID int64) error {
	return r.markPublished(ctx, r.pool, orderID)
}

func (r *publicationRepo) MarkPublishedTx(ctx context.Context, tx pgx.Tx, orderID int64) error {
	return r.markPublished(ctx, tx, orderID)
}

func (r *publicationRepo) markPublished(ctx context.Context, db execer, orderID int64) error {
	ctx, span := r.tracer.Start(ctx, "PublicationRepository.MarkPublished")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		INSERT INTO order_publications (order_id, published_at)
		VALUES ($1, NOW())
		ON CONFLICT (order_id) DO UPDATE SET published_at = EXCLUDED.published_at
	`

	if _, err := db.Exec(ctx, query, orderID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to record publication",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to record publication: %w", err)
	}

	return nil
}

func (r *publicationRepo) FindUnannounced(ctx context.Context, tx pgx.Tx, grace time.Duration, batchSize int) ([]int64, error) {
	ctx, span := r.tracer.Start(ctx, "PublicationRepository.FindUnannounced")
	defer span.End()

	span.SetAttributes(
		attribute.Int("batch_size", batchSize),
		attribute.String("grace", grace.String()),
	)

	query := `
		SELECT o.id
		FROM orders o
		LEFT JOIN order_publications p ON p.order_id = o.id
		WHERE o.status = 'ACCEPTED'
			AND p.order_id IS NULL
			AND o.created_date <= NOW() - make_interval(secs => $1)
		ORDER BY o.created_date ASC
		LIMIT $2
		FOR UPDATE OF o SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, grace.Seconds(), batchSize)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query unannounced orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning order id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, err
	}

	span.SetAttributes(
		attribute.Int("result_count", len(ids)),
	)

	return ids, nil
}
