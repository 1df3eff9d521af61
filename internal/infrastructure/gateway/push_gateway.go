package gateway

import (
	"context"
	"net/http"
	"time"

	"go-clinic-appointment/internal/domain/provider"
	"go-clinic-appointment/internal/infrastructure/metrics"

	"github.com/shopspring/decimal"
)

type pushRequest struct {
	AppointmentID string          `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	PhoneNumber   string          `json:"phone_number"`
}

// PushGateway asks the provider to prompt a phone: POST {base}/push.
// The outcome arrives later through the signed callback.
type PushGateway struct {
	client  *signedClient
	breaker *Breaker
}

func NewPushGateway(baseURL, secret string, timeout time.Duration, breaker *Breaker, m *metrics.Metrics) *PushGateway {
	return &PushGateway{
		client: &signedClient{
			baseURL: baseURL,
			secret:  secret,
			rail:    "push",
			http:    &http.Client{Timeout: timeout},
			metrics: m,
		},
		breaker: breaker,
	}
}

func (g *PushGateway) Push(ctx context.Context, req provider.PushRequest) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.client.post(ctx, "/push", pushRequest{
			AppointmentID: req.AppointmentID.String(),
			Amount:        req.Amount,
			PhoneNumber:   req.PhoneNumber,
		}, nil)
	})
	return err
}
