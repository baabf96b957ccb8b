package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/services/order/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	FindAllByOwner(ctx context.Context, owner string) ([]domain.Order, error)
	Create(ctx context.Context, order *domain.Order) error
	// UpdateStatus writes status only if the stored version still equals
	// expectedVersion, and bumps the version on success.
	UpdateStatus(ctx context.Context, order *domain.Order, expectedVersion int) error
}

const orderColumns = `
	id, book_isbn, book_name, book_price, quantity, status,
	created_date, last_modified_date, created_by, last_modified_by, version
`

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

func (r *orderRepo) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.FindByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	query := `SELECT` + orderColumns + `FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	return order, nil
}

func (r *orderRepo) FindAllByOwner(ctx context.Context, owner string) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.FindAllByOwner")
	defer span.End()

	span.SetAttributes(
		attribute.String("owner", owner),
	)

	query := `SELECT` + orderColumns + `FROM orders WHERE created_by = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, owner)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query orders",
			zap.String("owner", owner),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		result = append(result, *order)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Rows error",
			zap.Error(err),
		)

		return nil, err
	}

	span.SetAttributes(
		attribute.Int("result_count", len(result)),
	)

	return result, nil
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("book_isbn", order.BookIsbn),
		attribute.String("status", string(order.Status)),
	)

	query := `
		INSERT INTO orders (
			book_isbn, book_name, book_price, quantity, status,
			created_date, last_modified_date, created_by, last_modified_by, version
		)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), $6, $7, 1)
		RETURNING id, created_date, last_modified_date, version
	`

	if err := r.pool.QueryRow(
		ctx,
		query,
		order.BookIsbn,
		order.BookName,
		order.BookPrice,
		order.Quantity,
		string(order.Status),
		order.CreatedBy,
		order.LastModifiedBy,
	).Scan(
		&order.ID,
		&order.CreatedDate,
		&order.LastModifiedDate,
		&order.Version,
	); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.String("book_isbn", order.BookIsbn),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
	)

	return nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, order *domain.Order, expectedVersion int) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
		attribute.String("status", string(order.Status)),
		attribute.Int("expected_version", expectedVersion),
	)

	query := `
		UPDATE orders
		SET status = $1,
			last_modified_date = NOW(),
			last_modified_by = $2,
			version = version + 1
		WHERE id = $3 AND version = $4
		RETURNING last_modified_date, version
	`

	err := r.pool.QueryRow(
		ctx,
		query,
		string(order.Status),
		order.LastModifiedBy,
		order.ID,
		expectedVersion,
	).Scan(
		&order.LastModifiedDate,
		&order.Version,
	)
	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update order",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to check order existence: %w", err)
	}

	if !exists {
		return ErrOrderNotFound
	}

	mylogger.Warn(
		ctx,
		r.logger,
		"Stale order version",
		zap.Int64("order_id", order.ID),
		zap.Int("expected_version", expectedVersion),
	)

	return ErrVersionConflict
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order     domain.Order
		status    string
		createdBy *string
		modifier  *string
	)

	if err := row.Scan(
		&order.ID,
		&order.BookIsbn,
		&order.BookName,
		&order.BookPrice,
		&order.Quantity,
		&status,
		&order.CreatedDate,
		&order.LastModifiedDate,
		&createdBy,
		&modifier,
		&order.Version,
	); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatus(status)
	if createdBy != nil {
		order.CreatedBy = *createdBy
	}
	if modifier != nil {
		order.LastModifiedBy = *modifier
	}

	return &order, nil
}
