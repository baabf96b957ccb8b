//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/sakashimaa/bookshop/pkg/testsuite"
	"github.com/sakashimaa/bookshop/services/order/internal/domain"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type RepositorySuite struct {
	testsuite.BaseSuite

	orders       OrderRepository
	publications PublicationRepository
}

func (s *RepositorySuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *RepositorySuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *RepositorySuite) SetupTest() {
	s.BaseSuite.TruncateTable("order_publications", "orders")

	logger := zap.NewNop()
	s.orders = NewOrderRepository(s.DbPool, logger)
	s.publications = NewPublicationRepository(s.DbPool, logger)
}

func (s *RepositorySuite) createAccepted(owner string) *domain.Order {
	order := domain.NewAcceptedOrder(&domain.Book{Isbn: "1234567890", Title: "Book", Author: "Author", Price: 12.3}, 3, owner)
	s.Require().NoError(s.orders.Create(s.Ctx, order))

	return order
}

func (s *RepositorySuite) TestCreate_AssignsIdentityAndVersion() {
	order := s.createAccepted("bjorn")

	s.Require().NotZero(order.ID)
	s.Require().Equal(1, order.Version)
	s.Require().False(order.CreatedDate.IsZero())

	found, err := s.orders.FindByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusAccepted, found.Status)
	s.Require().Equal("Book", *found.BookName)
	s.Require().InDelta(12.3, *found.BookPrice, 0.0001)
	s.Require().Equal("bjorn", found.CreatedBy)
}

func (s *RepositorySuite) TestCreate_RejectedKeepsNullSnapshot() {
	order := domain.NewRejectedOrder("9999999999", 2, "bjorn")
	s.Require().NoError(s.orders.Create(s.Ctx, order))

	found, err := s.orders.FindByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Nil(found.BookName)
	s.Require().Nil(found.BookPrice)
}

func (s *RepositorySuite) TestUpdateStatus_BumpsVersion() {
	order := s.createAccepted("bjorn")

	_, err := order.Dispatch()
	s.Require().NoError(err)
	s.Require().NoError(s.orders.UpdateStatus(s.Ctx, order, 1))
	s.Require().Equal(2, order.Version)

	found, err := s.orders.FindByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusDispatched, found.Status)
	s.Require().Equal(2, found.Version)
}

func (s *RepositorySuite) TestUpdateStatus_StaleVersionConflicts() {
	order := s.createAccepted("bjorn")

	first, err := s.orders.FindByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	second, err := s.orders.FindByID(s.Ctx, order.ID)
	s.Require().NoError(err)

	_, _ = first.Dispatch()
	s.Require().NoError(s.orders.UpdateStatus(s.Ctx, first, 1))

	_, _ = second.Dispatch()
	err = s.orders.UpdateStatus(s.Ctx, second, 1)
	s.Require().ErrorIs(err, ErrVersionConflict)

	found, err := s.orders.FindByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(2, found.Version)
}

func (s *RepositorySuite) TestUpdateStatus_UnknownOrder() {
	order := &domain.Order{ID: 4242, Status: domain.OrderStatusDispatched}

	err := s.orders.UpdateStatus(s.Ctx, order, 1)

	s.Require().ErrorIs(err, ErrOrderNotFound)
}

func (s *RepositorySuite) TestFindByID_NotFound() {
	_, err := s.orders.FindByID(s.Ctx, 4242)

	s.Require().ErrorIs(err, ErrOrderNotFound)
}

func (s *RepositorySuite) TestFindAllByOwner() {
	s.createAccepted("bjorn")
	s.createAccepted("bjorn")
	s.createAccepted("isabelle")

	orders, err := s.orders.FindAllByOwner(s.Ctx, "bjorn")
	s.Require().NoError(err)
	s.Require().Len(orders, 2)

	none, err := s.orders.FindAllByOwner(s.Ctx, "nobody")
	s.Require().NoError(err)
	s.Require().Empty(none)
}

func (s *RepositorySuite) TestPublicationLedger() {
	announced := s.createAccepted("bjorn")
	pending := s.createAccepted("bjorn")
	rejected := domain.NewRejectedOrder("9999999999", 1, "bjorn")
	s.Require().NoError(s.orders.Create(s.Ctx, rejected))

	s.Require().NoError(s.publications.MarkPublished(s.Ctx, announced.ID))
	s.Require().NoError(s.publications.MarkPublished(s.Ctx, announced.ID))

	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback(s.Ctx) }()

	ids, err := s.publications.FindUnannounced(s.Ctx, tx, 0, 10)
	s.Require().NoError(err)
	s.Require().Equal([]int64{pending.ID}, ids)

	fresh, err := s.publications.FindUnannounced(s.Ctx, tx, time.Hour, 10)
	s.Require().NoError(err)
	s.Require().Empty(fresh)

	found, err := s.orders.FindByID(s.Ctx, announced.ID)
	s.Require().NoError(err)
	s.Require().Equal(1, found.Version)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}
