package handler

import (
	"errors"
	"net/http"

	"go-clinic-appointment/internal/domain/policy"
	"go-clinic-appointment/internal/usecase"
	"go-clinic-appointment/pkg/response"
)

// errorStatus maps usecase sentinels to HTTP statuses. Anything unlisted is a 500.
var errorStatus = []struct {
	err    error
	status int
}{
	{usecase.ErrAppointmentNotFound, http.StatusNotFound},
	{usecase.ErrPaymentNotFound, http.StatusNotFound},
	{usecase.ErrPrescriptionNotFound, http.StatusNotFound},
	{usecase.ErrDoctorNotFound, http.StatusNotFound},
	{usecase.ErrUserNotFound, http.StatusNotFound},
	{usecase.ErrAuditLogNotFound, http.StatusNotFound},

	{usecase.ErrInvalidTransition, http.StatusConflict},
	{usecase.ErrAppointmentStateChanged, http.StatusConflict},
	{usecase.ErrTransactionConflict, http.StatusConflict},
	{usecase.ErrPaymentAlreadyRefunded, http.StatusConflict},
	{usecase.ErrPaymentNotRefundable, http.StatusConflict},
	{usecase.ErrSessionMismatch, http.StatusConflict},
	{usecase.ErrEmailAlreadyExists, http.StatusConflict},
	{usecase.ErrNIKAlreadyExists, http.StatusConflict},
	{usecase.ErrSTRAlreadyExists, http.StatusConflict},

	{usecase.ErrInvalidStatus, http.StatusBadRequest},
	{usecase.ErrInvalidAmount, http.StatusBadRequest},
	{usecase.ErrInvalidDateFormat, http.StatusBadRequest},
	{usecase.ErrAppointmentDateInPast, http.StatusBadRequest},
	{usecase.ErrAmountMismatch, http.StatusBadRequest},
	{usecase.ErrPhoneNumberRequired, http.StatusBadRequest},
	{usecase.ErrInvalidSettlementStatus, http.StatusBadRequest},
	{usecase.ErrInvalidRail, http.StatusBadRequest},
	{usecase.ErrTransactionIDRequired, http.StatusBadRequest},

	{usecase.ErrPaymentRejected, http.StatusUnprocessableEntity},
	{usecase.ErrInvalidMedicines, http.StatusBadRequest},

	{usecase.ErrInvalidCredentials, http.StatusUnauthorized},
	{usecase.ErrInvalidToken, http.StatusUnauthorized},
	{usecase.ErrTokenRevoked, http.StatusUnauthorized},
	{usecase.ErrTokenExpired, http.StatusUnauthorized},
	{usecase.ErrUserInactive, http.StatusForbidden},

	{usecase.ErrProviderUnavailable, http.StatusServiceUnavailable},
	{usecase.ErrProviderFailure, http.StatusBadGateway},
}

// writeError renders err in the response envelope. Role gate denials carry
// their kind so clients can tell "forbidden" from "refresh and retry".
func writeError(w http.ResponseWriter, err error, fallback string) {
	var denial *policy.DenialError
	if errors.As(err, &denial) {
		detail := map[string]string{"kind": string(denial.Kind), "action": string(denial.Action)}
		switch denial.Kind {
		case policy.KindReauthenticate:
			response.Error(w, http.StatusUnauthorized, "Credential expired, please re-authenticate", detail)
		case policy.KindNotPossible:
			response.Conflict(w, denial.Reason, detail)
		default:
			response.Error(w, http.StatusForbidden, denial.Reason, detail)
		}
		return
	}

	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			response.Error(w, e.status, err.Error(), nil)
			return
		}
	}

	response.InternalServerError(w, fallback)
}
