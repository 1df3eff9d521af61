// Package provider declares the payment rail boundaries consumed by the
// settlement engine. Implementations live in infrastructure/gateway.
package provider

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrProviderUnavailable is returned when a rail refuses calls, e.g. while its
// circuit breaker is open. Callers should retry later.
var ErrProviderUnavailable = errors.New("payment provider temporarily unavailable")

// ErrProviderRejected is returned when a rail is up but refused the request,
// e.g. an unknown phone number. Retrying the same request will not help.
var ErrProviderRejected = errors.New("payment provider rejected the request")

// RedirectSessionRequest opens a hosted checkout session
type RedirectSessionRequest struct {
	SessionID     string
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	ReturnURL     string
}

// RedirectSession is what the patient's browser is sent to
type RedirectSession struct {
	SessionID   string
	RedirectURL string
}

// RedirectProvider is the synchronous, browser-redirect rail
type RedirectProvider interface {
	OpenSession(ctx context.Context, req RedirectSessionRequest) (*RedirectSession, error)
}

// PushRequest asks the provider to prompt the patient's phone for payment
type PushRequest struct {
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	PhoneNumber   string
}

// PushProvider is the asynchronous rail. Settlement arrives later through the
// provider callback.
type PushProvider interface {
	Push(ctx context.Context, req PushRequest) error
}
