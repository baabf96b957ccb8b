package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/pkg/utils"
	"github.com/sakashimaa/bookshop/services/order/internal/domain"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	outcomeFound       = "found"
	outcomeNotFound    = "not_found"
	outcomeTimeout     = "timeout"
	outcomeCanceled    = "canceled"
	outcomeFailed      = "failed"
	outcomeCircuitOpen = "circuit_open"
)

var (
	errBookNotFound       = errors.New("book not found in catalog")
	errCatalogUnavailable = errors.New("catalog unavailable")
)

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    uint64
	InitialBackoff time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
	lookups    *prometheus.CounterVec
}

func NewClient(cfg Config, logger *zap.Logger, registerer prometheus.Registerer) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog base URL: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}

	breaker := utils.NewBreaker(utils.BreakerConfig{
		Name:     "CatalogService",
		Interval: 5 * time.Second,
		Timeout:  10 * time.Second,
		IsSuccessful: func(err error) bool {
			return !catalogFault(err)
		},
	}, logger)

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("catalog_client"),
		lookups: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_lookups_total",
			Help: "Catalog book lookups by outcome.",
		}, []string{"outcome"}),
	}, nil
}

// Lookup resolves isbn against the catalog. Every failure mode, including
// timeouts and an open breaker, is reported as absent.
func (c *Client) Lookup(ctx context.Context, isbn string) (*domain.Book, bool) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, false
	}

	ctx, span := c.tracer.Start(ctx, "CatalogClient.Lookup")
	defer span.End()

	span.SetAttributes(
		attribute.String("book.isbn", isbn),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.cfg.InitialBackoff
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, c.cfg.MaxAttempts-1), ctx)

	// The breaker sees one result per lookup, after retries.
	attempt := 0
	book, err := utils.ExecuteWithBreaker(c.breaker, func() (*domain.Book, error) {
		return backoff.RetryWithData(func() (*domain.Book, error) {
			attempt++
			return c.fetch(ctx, isbn)
		}, policy)
	})

	outcome := c.classify(ctx, err)
	c.lookups.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.String("catalog.outcome", outcome),
		attribute.Int("catalog.attempts", attempt),
	)

	if err != nil {
		if outcome != outcomeNotFound {
			span.RecordError(err)
		}

		mylogger.Warn(
			ctx,
			c.logger,
			"Catalog lookup resolved to absent",
			zap.String("isbn", isbn),
			zap.String("outcome", outcome),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)

		return nil, false
	}

	mylogger.Debug(
		ctx,
		c.logger,
		"Catalog lookup succeeded",
		zap.String("isbn", isbn),
		zap.Int("attempts", attempt),
	)

	return book, true
}

func (c *Client) fetch(ctx context.Context, isbn string) (*domain.Book, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/books/"+url.PathEscape(isbn), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build catalog request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("call catalog: %w", err)
		}

		return nil, fmt.Errorf("%w: %w", errCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(errBookNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s", errCatalogUnavailable, resp.Status)
	default:
		return nil, backoff.Permanent(fmt.Errorf("catalog unexpected status: %s", resp.Status))
	}

	var book domain.Book
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode catalog book: %w", err))
	}
	if book.Isbn == "" {
		book.Isbn = isbn
	}

	return &book, nil
}

func (c *Client) classify(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return outcomeFound
	case errors.Is(err, errBookNotFound):
		return outcomeNotFound
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return outcomeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return outcomeTimeout
	case errors.Is(err, context.Canceled):
		return outcomeCanceled
	default:
		return outcomeFailed
	}
}

// catalogFault reports whether err says the catalog itself is unhealthy.
// Only these count against the breaker; answers about a single isbn and
// callers that gave up do not.
func catalogFault(err error) bool {
	return errors.Is(err, errCatalogUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
