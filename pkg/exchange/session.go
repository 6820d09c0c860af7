package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/pkg/httpclient"
)

// Session is what a variant's fetch hooks see: one exchange's HTTP client,
// base URL, timeout and retry policy.
type Session struct {
	variant        *Variant
	client         *httpclient.Client
	baseURL        string
	timeout        time.Duration
	retry          httpclient.RetryPolicy
	maxConcurrency int
	logger         *logrus.Entry
}

// Get fetches path with query and decodes the JSON body into out.
func (s *Session) Get(ctx context.Context, label, path string, query url.Values, out interface{}) error {
	raw, err := s.Fetch(ctx, label, path, httpclient.RequestOptions{Query: query})
	if err != nil {
		return err
	}
	return httpclient.Decode(s.variant.Name+" "+label, raw, out)
}

// Post sends body as JSON to path and decodes the response into out.
func (s *Session) Post(ctx context.Context, label, path string, body, out interface{}) error {
	raw, err := s.Fetch(ctx, label, path, httpclient.RequestOptions{Method: http.MethodPost, Body: body})
	if err != nil {
		return err
	}
	return httpclient.Decode(s.variant.Name+" "+label, raw, out)
}

// Fetch performs one request through the exchange retry policy.
func (s *Session) Fetch(ctx context.Context, label, path string, opts httpclient.RequestOptions) (json.RawMessage, error) {
	opts.Timeout = s.timeout
	target := httpclient.JoinURL(s.baseURL, path)
	policy := s.retry
	policy.Label = s.variant.Name + " " + label

	return httpclient.WithRetry(ctx, s.logger, policy, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.FetchJSON(ctx, target, opts)
	})
}

// Entry parses symbol with the exchange convention. It reports false for
// malformed symbols so callers drop them.
func (s *Session) Entry(symbol string, meta models.MarketMeta) (models.MarketCatalogEntry, bool) {
	return s.variant.entry(symbol, meta)
}

// MaxConcurrency bounds per-instrument fan-out.
func (s *Session) MaxConcurrency() int {
	return s.maxConcurrency
}

// Logger returns the exchange-scoped logger.
func (s *Session) Logger() *logrus.Entry {
	return s.logger
}
