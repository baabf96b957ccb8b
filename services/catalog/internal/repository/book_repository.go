package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/services/catalog/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type BookRepository interface {
	Create(ctx context.Context, book *domain.Book) error
	GetByIsbn(ctx context.Context, isbn string) (*domain.Book, error)
	List(ctx context.Context) ([]domain.Book, error)
	Update(ctx context.Context, book *domain.Book, expectedVersion int) error
	DeleteByIsbn(ctx context.Context, isbn string) error
}

const bookColumns = `
	id, isbn, title, author, price, publisher, created_date, last_modified_date, version
`

type bookRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewBookRepository(pool *pgxpool.Pool, logger *zap.Logger) BookRepository {
	return &bookRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/book_repo"),
	}
}

func (r *bookRepo) Create(ctx context.Context, book *domain.Book) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("isbn", book.Isbn),
	)

	query := `
		INSERT INTO books (isbn, title, author, price, publisher, created_date, last_modified_date, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING id, created_date, last_modified_date, version
	`

	err := r.pool.QueryRow(
		ctx,
		query,
		book.Isbn,
		book.Title,
		book.Author,
		book.Price,
		book.Publisher,
	).Scan(&book.ID, &book.CreatedDate, &book.LastModifiedDate, &book.Version)
	if err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			mylogger.Warn(
				ctx,
				r.logger,
				"Book already exists",
				zap.String("isbn", book.Isbn),
			)

			return ErrBookAlreadyExists
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error creating book",
			zap.String("isbn", book.Isbn),
			zap.Error(err),
		)

		return fmt.Errorf("error creating book: %w", err)
	}

	return nil
}

func (r *bookRepo) GetByIsbn(ctx context.Context, isbn string) (*domain.Book, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.GetByIsbn")
	defer span.End()

	span.SetAttributes(
		attribute.String("isbn", isbn),
	)

	query := `SELECT` + bookColumns + `FROM books WHERE isbn = $1`

	book, err := scanBook(r.pool.QueryRow(ctx, query, isbn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error get by isbn",
			zap.String("isbn", isbn),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting book: %w", err)
	}

	return book, nil
}

func (r *bookRepo) List(ctx context.Context) ([]domain.Book, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.List")
	defer span.End()

	query := `SELECT` + bookColumns + `FROM books ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting books",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting books: %w", err)
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Rows iteration error",
			zap.Error(err),
		)

		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return books, nil
}

func (r *bookRepo) Update(ctx context.Context, book *domain.Book, expectedVersion int) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("isbn", book.Isbn),
		attribute.Int("expected_version", expectedVersion),
	)

	query := `
		UPDATE books
		SET title = $1,
			author = $2,
			price = $3,
			publisher = $4,
			last_modified_date = NOW(),
			version = version + 1
		WHERE isbn = $5 AND version = $6
		RETURNING id, created_date, last_modified_date, version
	`

	err := r.pool.QueryRow(
		ctx,
		query,
		book.Title,
		book.Author,
		book.Price,
		book.Publisher,
		book.Isbn,
		expectedVersion,
	).Scan(&book.ID, &book.CreatedDate, &book.LastModifiedDate, &book.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(
				ctx,
				r.logger,
				"Stale book version or book removed",
				zap.String("isbn", book.Isbn),
				zap.Int("expected_version", expectedVersion),
			)

			return ErrVersionConflict
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error updating book",
			zap.String("isbn", book.Isbn),
			zap.Error(err),
		)

		return fmt.Errorf("error updating book: %w", err)
	}

	return nil
}

func (r *bookRepo) DeleteByIsbn(ctx context.Context, isbn string) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.DeleteByIsbn")
	defer span.End()

	span.SetAttributes(
		attribute.String("isbn", isbn),
	)

	commandTag, err := r.pool.Exec(ctx, `DELETE FROM books WHERE isbn = $1`, isbn)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deleting book",
			zap.String("isbn", isbn),
			zap.Error(err),
		)

		return fmt.Errorf("error deleting book: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrBookNotFound
	}

	return nil
}

func scanBook(row pgx.Row) (*domain.Book, error) {
	var book domain.Book
	if err := row.Scan(
		&book.ID,
		&book.Isbn,
		&book.Title,
		&book.Author,
		&book.Price,
		&book.Publisher,
		&book.CreatedDate,
		&book.LastModifiedDate,
		&book.Version,
	); err != nil {
		return nil, err
	}

	return &book, nil
}
