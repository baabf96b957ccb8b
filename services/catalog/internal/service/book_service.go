package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/services/catalog/internal/domain"
	"github.com/sakashimaa/bookshop/services/catalog/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrInvalidBook = errors.New("invalid book")

type BookService interface {
	List(ctx context.Context) ([]domain.Book, error)
	FindByIsbn(ctx context.Context, isbn string) (*domain.Book, error)
	Add(ctx context.Context, book *domain.Book) (*domain.Book, error)
	Edit(ctx context.Context, isbn string, book *domain.Book) (*domain.Book, error)
	Remove(ctx context.Context, isbn string) error
}

type bookService struct {
	bookRepo repository.BookRepository
	validate *validator.Validate
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewBookService(bookRepo repository.BookRepository, logger *zap.Logger) BookService {
	return &bookService{
		bookRepo: bookRepo,
		validate: domain.NewValidator(),
		logger:   logger,
		tracer:   otel.Tracer("book_service"),
	}
}

func (s *bookService) List(ctx context.Context) ([]domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "BookService.List")
	defer span.End()

	return s.bookRepo.List(ctx)
}

func (s *bookService) FindByIsbn(ctx context.Context, isbn string) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "BookService.FindByIsbn")
	defer span.End()

	span.SetAttributes(
		attribute.String("isbn", isbn),
	)

	return s.bookRepo.GetByIsbn(ctx, isbn)
}

func (s *bookService) Add(ctx context.Context, book *domain.Book) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "BookService.Add")
	defer span.End()

	span.SetAttributes(
		attribute.String("isbn", book.Isbn),
	)

	if err := s.validate.Struct(book); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBook, err)
	}

	if err := s.bookRepo.Create(ctx, book); err != nil {
		if !errors.Is(err, repository.ErrBookAlreadyExists) {
			span.RecordError(err)
		}

		return nil, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Book added to catalog",
		zap.String("isbn", book.Isbn),
		zap.Int64("book_id", book.ID),
	)

	return book, nil
}

// Edit updates the book stored under isbn, or adds it when the catalog does
// not know it yet. The isbn in the path always wins over the one in the body.
func (s *bookService) Edit(ctx context.Context, isbn string, book *domain.Book) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "BookService.Edit")
	defer span.End()

	span.SetAttributes(
		attribute.String("isbn", isbn),
	)

	book.Isbn = isbn
	if err := s.validate.Struct(book); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBook, err)
	}

	existing, err := s.bookRepo.GetByIsbn(ctx, isbn)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return s.Add(ctx, book)
		}

		span.RecordError(err)
		return nil, err
	}

	if err := s.bookRepo.Update(ctx, book, existing.Version); err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to edit book",
			zap.String("isbn", isbn),
			zap.Error(err),
		)

		return nil, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Book edited",
		zap.String("isbn", isbn),
		zap.Int("version", book.Version),
	)

	return book, nil
}

func (s *bookService) Remove(ctx context.Context, isbn string) error {
	ctx, span := s.tracer.Start(ctx, "BookService.Remove")
	defer span.End()

	span.SetAttributes(
		attribute.String("isbn", isbn),
	)

	err := s.bookRepo.DeleteByIsbn(ctx, isbn)
	if errors.Is(err, repository.ErrBookNotFound) {
		mylogger.Debug(
			ctx,
			s.logger,
			"Book already absent from catalog",
			zap.String("isbn", isbn),
		)

		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Book removed from catalog",
		zap.String("isbn", isbn),
	)

	return nil
}
