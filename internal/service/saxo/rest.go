package saxo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/domain/repository"
	"SaxoBridge/internal/service/ratelimit"
	apphttp "SaxoBridge/pkg/http"
)

const restLimiterKey = "rest"

// RESTClient is a bearer-authenticated JSON client for the upstream API.
// Every call waits on a shared client-side limiter.
type RESTClient struct {
	http    *apphttp.Client
	limiter *ratelimit.Limiter
	metrics repository.Metrics
}

// NewRESTClient wraps c. limiter and m may be nil.
func NewRESTClient(c *apphttp.Client, limiter *ratelimit.Limiter, m repository.Metrics) *RESTClient {
	if limiter == nil {
		limiter = ratelimit.New(0, 1)
	}
	return &RESTClient{http: c, limiter: limiter, metrics: m}
}

func (c *RESTClient) Get(ctx context.Context, token, rawURL string, query url.Values, dest interface{}) error {
	return c.do(ctx, apphttp.MethodGet, token, rawURL, query, nil, dest)
}

func (c *RESTClient) Post(ctx context.Context, token, rawURL string, body, dest interface{}) error {
	return c.do(ctx, apphttp.MethodPost, token, rawURL, nil, body, dest)
}

func (c *RESTClient) Put(ctx context.Context, token, rawURL string, body, dest interface{}) error {
	return c.do(ctx, apphttp.MethodPut, token, rawURL, nil, body, dest)
}

func (c *RESTClient) Delete(ctx context.Context, token, rawURL string) error {
	return c.do(ctx, apphttp.MethodDelete, token, rawURL, nil, nil, nil)
}

func (c *RESTClient) do(ctx context.Context, method, token, rawURL string, query url.Values, body, dest interface{}) error {
	if err := c.limiter.Wait(ctx, restLimiterKey); err != nil {
		return fmt.Errorf("%w: %s %s: %w", models.ErrUpstreamUnavailable, method, rawURL, err)
	}

	start := time.Now()
	err := c.http.SendAndParse(ctx, &apphttp.RequestOptions{
		Method:      method,
		URL:         rawURL,
		Headers:     map[string]string{"Authorization": "Bearer " + token},
		QueryParams: query,
		Body:        body,
	}, dest)
	if c.metrics != nil {
		c.metrics.RecordLatency("saxo_"+strings.ToLower(method), time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("saxo_rest")
		}
		return fmt.Errorf("%w: %s %s: %w", models.ErrUpstreamUnavailable, method, rawURL, err)
	}
	return nil
}
