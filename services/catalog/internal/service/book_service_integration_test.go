//go:build integration

package service

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/bookshop/pkg/testsuite"
	"github.com/sakashimaa/bookshop/services/catalog/internal/domain"
	"github.com/sakashimaa/bookshop/services/catalog/internal/repository"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type CachedBookSuite struct {
	testsuite.BaseSuite

	redisClient *redis.Client
	books       BookService
}

func (s *CachedBookSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations", testsuite.WithRedis())
	s.redisClient = redis.NewClient(&redis.Options{Addr: s.RedisAddr})
}

func (s *CachedBookSuite) TearDownSuite() {
	_ = s.redisClient.Close()
	s.BaseSuite.TearDownInfrastructure()
}

func (s *CachedBookSuite) SetupTest() {
	s.BaseSuite.TruncateTable("books")
	s.Require().NoError(s.redisClient.FlushAll(s.Ctx).Err())

	logger := zap.NewNop()
	s.books = NewCachedBookService(
		NewBookService(repository.NewBookRepository(s.DbPool, logger), logger),
		s.redisClient,
		time.Minute,
		logger,
	)
}

func (s *CachedBookSuite) TestFindByIsbn_PopulatesCache() {
	_, err := s.books.Add(s.Ctx, &domain.Book{Isbn: "1234567891", Title: "North", Author: "Lyra", Price: 9.9})
	s.Require().NoError(err)

	book, err := s.books.FindByIsbn(s.Ctx, "1234567891")
	s.Require().NoError(err)
	s.Require().Equal("North", book.Title)

	ttl, err := s.redisClient.TTL(s.Ctx, "book:1234567891").Result()
	s.Require().NoError(err)
	s.Require().Positive(ttl)

	// Served from the cache even after the row is gone underneath it.
	s.BaseSuite.TruncateTable("books")

	cached, err := s.books.FindByIsbn(s.Ctx, "1234567891")
	s.Require().NoError(err)
	s.Require().Equal(book.ID, cached.ID)
}

func (s *CachedBookSuite) TestEdit_InvalidatesCache() {
	_, err := s.books.Add(s.Ctx, &domain.Book{Isbn: "1234567891", Title: "North", Author: "Lyra", Price: 9.9})
	s.Require().NoError(err)

	_, err = s.books.FindByIsbn(s.Ctx, "1234567891")
	s.Require().NoError(err)

	_, err = s.books.Edit(s.Ctx, "1234567891", &domain.Book{Title: "South", Author: "Lyra", Price: 11})
	s.Require().NoError(err)

	exists, err := s.redisClient.Exists(s.Ctx, "book:1234567891").Result()
	s.Require().NoError(err)
	s.Require().Zero(exists)

	book, err := s.books.FindByIsbn(s.Ctx, "1234567891")
	s.Require().NoError(err)
	s.Require().Equal("South", book.Title)
	s.Require().Equal(2, book.Version)
}

func (s *CachedBookSuite) TestRemove_InvalidatesCache() {
	_, err := s.books.Add(s.Ctx, &domain.Book{Isbn: "1234567891", Title: "North", Author: "Lyra", Price: 9.9})
	s.Require().NoError(err)

	_, err = s.books.FindByIsbn(s.Ctx, "1234567891")
	s.Require().NoError(err)

	s.Require().NoError(s.books.Remove(s.Ctx, "1234567891"))

	_, err = s.books.FindByIsbn(s.Ctx, "1234567891")
	s.Require().ErrorIs(err, repository.ErrBookNotFound)
}

func TestCachedBookSuite(t *testing.T) {
	suite.Run(t, new(CachedBookSuite))
}
