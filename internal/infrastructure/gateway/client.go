package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-clinic-appointment/internal/domain/provider"
	"go-clinic-appointment/internal/infrastructure/metrics"
	"go-clinic-appointment/pkg/signature"
)

var (
	// ErrRejected is a 4xx answer: the provider is up but refused the request
	ErrRejected = provider.ErrProviderRejected
	// ErrUpstream is a transport failure or 5xx answer
	ErrUpstream = errors.New("payment provider error")
)

// signedClient posts signed JSON to a provider base URL
type signedClient struct {
	baseURL string
	secret  string
	rail    string
	http    *http.Client
	metrics *metrics.Metrics
}

func (c *signedClient) post(ctx context.Context, path string, body interface{}, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			c.metrics.ProviderCallDuration.WithLabelValues(c.rail, outcome).Observe(time.Since(start).Seconds())
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign(payload, c.secret))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}
