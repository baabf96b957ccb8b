package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/services/catalog/internal/domain"
	"go.uber.org/zap"
)

const defaultCacheTTL = 10 * time.Minute

type cachedBookService struct {
	next        BookService
	redisClient redis.Cmdable
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedBookService(next BookService, redisClient redis.Cmdable, cacheTTL time.Duration, logger *zap.Logger) BookService {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}

	return &cachedBookService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func bookKey(isbn string) string {
	return fmt.Sprintf("book:%s", isbn)
}

func (s *cachedBookService) List(ctx context.Context) ([]domain.Book, error) {
	return s.next.List(ctx)
}

func (s *cachedBookService) FindByIsbn(ctx context.Context, isbn string) (*domain.Book, error) {
	key := bookKey(isbn)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var book domain.Book
		if err := json.Unmarshal(val, &book); err == nil {
			return &book, nil
		}

		mylogger.Warn(
			ctx,
			s.logger,
			"Dropping unreadable cached book",
			zap.String("key", key),
		)
	case !errors.Is(err, redis.Nil):
		mylogger.Warn(
			ctx,
			s.logger,
			"Book cache read failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	book, err := s.next.FindByIsbn(ctx, isbn)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(book)
	if err != nil {
		return book, nil
	}

	if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Book cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	return book, nil
}

func (s *cachedBookService) Add(ctx context.Context, book *domain.Book) (*domain.Book, error) {
	return s.next.Add(ctx, book)
}

func (s *cachedBookService) Edit(ctx context.Context, isbn string, book *domain.Book) (*domain.Book, error) {
	edited, err := s.next.Edit(ctx, isbn, book)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, isbn)
	return edited, nil
}

func (s *cachedBookService) Remove(ctx context.Context, isbn string) error {
	if err := s.next.Remove(ctx, isbn); err != nil {
		return err
	}

	s.invalidate(ctx, isbn)
	return nil
}

func (s *cachedBookService) invalidate(ctx context.Context, isbn string) {
	if err := s.redisClient.Del(ctx, bookKey(isbn)).Err(); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Book cache invalidation failed",
			zap.String("isbn", isbn),
			zap.Error(err),
		)
	}
}
