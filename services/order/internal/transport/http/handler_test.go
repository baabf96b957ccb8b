package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	generalDomain "github.com/sakashimaa/bookshop/pkg/domain"
	"github.com/sakashimaa/bookshop/services/order/internal/domain"
	"github.com/sakashimaa/bookshop/services/order/internal/repository"
	"github.com/sakashimaa/bookshop/services/order/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubOrderService struct {
	submitErr   error
	submitted   []string
	lastOwner   string
	lastQty     int
	orders      []domain.Order
	getErr      error
	requestedID int64
}

func (s *stubOrderService) SubmitOrder(_ context.Context, isbn string, quantity int, owner string) (*domain.Order, error) {
	s.submitted = append(s.submitted, isbn)
	s.lastOwner = owner
	s.lastQty = quantity

	name, price := "Book", 12.3
	order := &domain.Order{
		ID:        1,
		BookIsbn:  isbn,
		BookName:  &name,
		BookPrice: &price,
		Quantity:  quantity,
		Status:    domain.OrderStatusAccepted,
		CreatedBy: owner,
		Version:   1,
	}

	switch {
	case errors.Is(s.submitErr, service.ErrEventPublish):
		return order, s.submitErr
	case s.submitErr != nil:
		return nil, s.submitErr
	}

	return order, nil
}

func (s *stubOrderService) ListOrders(_ context.Context, owner string) ([]domain.Order, error) {
	s.lastOwner = owner
	return s.orders, nil
}

func (s *stubOrderService) GetOrder(_ context.Context, id int64, owner string) (*domain.Order, error) {
	s.requestedID = id
	s.lastOwner = owner

	if s.getErr != nil {
		return nil, s.getErr
	}

	return &domain.Order{ID: id, BookIsbn: "1234567890", Status: domain.OrderStatusDispatched, CreatedBy: owner}, nil
}

func (s *stubOrderService) HandleOrderDispatched(context.Context, *generalDomain.OrderDispatchedEvent) error {
	return nil
}

func newTestApp(svc service.OrderService, jwtSecret string) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, NewOrderHandler(svc, zap.NewNop(), 5), jwtSecret, prometheus.NewRegistry())

	return app
}

func postOrder(t *testing.T, app *fiber.App, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest("POST", "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "bjorn")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))

	return resp.StatusCode, payload
}

func TestSubmit_ReturnsPersistedOrder(t *testing.T) {
	svc := &stubOrderService{}
	app := newTestApp(svc, "")

	status, payload := postOrder(t, app, `{"isbn":"1234567890","quantity":3}`)

	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "ACCEPTED", payload["status"])
	require.Equal(t, "1234567890", payload["bookIsbn"])
	require.Equal(t, "Book", payload["bookName"])
	require.Equal(t, float64(3), payload["quantity"])
	require.Equal(t, "bjorn", svc.lastOwner)
}

func TestSubmit_ValidationMessages(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
		want  string
	}{
		{name: "missing isbn", body: `{"quantity":1}`, field: "isbn", want: "The book ISBN must be defined."},
		{name: "missing quantity", body: `{"isbn":"1234567890"}`, field: "quantity", want: "The book quantity must be defined."},
		{name: "zero quantity", body: `{"isbn":"1234567890","quantity":0}`, field: "quantity", want: "You must order at least 1 item."},
		{name: "too many", body: `{"isbn":"1234567890","quantity":7}`, field: "quantity", want: "You cannot order more than 5 items."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubOrderService{}
			app := newTestApp(svc, "")

			status, payload := postOrder(t, app, tt.body)

			require.Equal(t, fiber.StatusBadRequest, status)
			errs, ok := payload["errors"].(map[string]any)
			require.True(t, ok)
			require.Equal(t, tt.want, errs[tt.field])
			require.Empty(t, svc.submitted)
		})
	}
}

func TestSubmit_PublishFailureIsUnavailable(t *testing.T) {
	svc := &stubOrderService{submitErr: fmt.Errorf("%w: order 1: broker down", service.ErrEventPublish)}
	app := newTestApp(svc, "")

	status, payload := postOrder(t, app, `{"isbn":"1234567890","quantity":1}`)

	require.Equal(t, fiber.StatusServiceUnavailable, status)
	require.Equal(t, float64(1), payload["orderId"])
	require.Equal(t, "ACCEPTED", payload["status"])
	require.Contains(t, payload["error"], "do not submit it again")
	require.NotContains(t, payload["error"], "Try again")
	require.Len(t, svc.submitted, 1)
}

func TestSubmit_UnexpectedFailureIsInternal(t *testing.T) {
	svc := &stubOrderService{submitErr: errors.New("connection reset")}
	app := newTestApp(svc, "")

	status, _ := postOrder(t, app, `{"isbn":"1234567890","quantity":1}`)

	require.Equal(t, fiber.StatusInternalServerError, status)
}

func TestOrders_RequireOwner(t *testing.T) {
	app := newTestApp(&stubOrderService{}, "")

	resp, err := app.Test(httptest.NewRequest("GET", "/orders", nil))

	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGet_NotFound(t *testing.T) {
	svc := &stubOrderService{getErr: repository.ErrOrderNotFound}
	app := newTestApp(svc, "")

	req := httptest.NewRequest("GET", "/orders/42", nil)
	req.Header.Set("X-User-Id", "bjorn")

	resp, err := app.Test(req)

	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, int64(42), svc.requestedID)
}

func TestList_UsesBearerSubject(t *testing.T) {
	const secret = "test-secret"
	svc := &stubOrderService{orders: []domain.Order{{ID: 1, CreatedBy: "isabelle", Status: domain.OrderStatusRejected}}}
	app := newTestApp(svc, secret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "isabelle",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "isabelle", svc.lastOwner)

	var orders []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	require.Len(t, orders, 1)
	require.Nil(t, orders[0]["bookName"])
}

func TestList_RejectsForgedToken(t *testing.T) {
	app := newTestApp(&stubOrderService{}, "test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "isabelle"})
	signed, err := token.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-User-Id", "isabelle")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app := newTestApp(&stubOrderService{}, "")

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))

	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
