package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go-clinic-appointment/internal/domain/provider"
	"go-clinic-appointment/internal/infrastructure/metrics"

	"github.com/shopspring/decimal"
)

type openSessionRequest struct {
	SessionID     string          `json:"session_id"`
	AppointmentID string          `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReturnURL     string          `json:"return_url"`
}

type openSessionResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// RedirectGateway opens hosted checkout sessions: POST {base}/sessions
type RedirectGateway struct {
	client  *signedClient
	breaker *Breaker
}

func NewRedirectGateway(baseURL, secret string, timeout time.Duration, breaker *Breaker, m *metrics.Metrics) *RedirectGateway {
	return &RedirectGateway{
		client: &signedClient{
			baseURL: baseURL,
			secret:  secret,
			rail:    "redirect",
			http:    &http.Client{Timeout: timeout},
			metrics: m,
		},
		breaker: breaker,
	}
}

func (g *RedirectGateway) OpenSession(ctx context.Context, req provider.RedirectSessionRequest) (*provider.RedirectSession, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		var out openSessionResponse
		err := g.client.post(ctx, "/sessions", openSessionRequest{
			SessionID:     req.SessionID,
			AppointmentID: req.AppointmentID.String(),
			Amount:        req.Amount,
			ReturnURL:     req.ReturnURL,
		}, &out)
		if err != nil {
			return nil, err
		}
		if out.RedirectURL == "" {
			return nil, fmt.Errorf("%w: empty redirect_url", ErrUpstream)
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	out := result.(*openSessionResponse)
	return &provider.RedirectSession{
		SessionID:   req.SessionID,
		RedirectURL: out.RedirectURL,
	}, nil
}
