package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/usecase"
	"go-clinic-appointment/pkg/response"
	"go-clinic-appointment/pkg/signature"
	"go-clinic-appointment/pkg/validator"

	"github.com/sirupsen/logrus"
)

// CallbackSecrets verify the provider-signed settlement callbacks
type CallbackSecrets struct {
	Redirect string
	Push     string
}

type PaymentHandler struct {
	log            *logrus.Logger
	paymentUsecase usecase.PaymentUsecase
	validator      *validator.CustomValidator
	secrets        CallbackSecrets
}

func NewPaymentHandler(log *logrus.Logger, paymentUsecase usecase.PaymentUsecase, validator *validator.CustomValidator, secrets CallbackSecrets) *PaymentHandler {
	return &PaymentHandler{
		log:            log,
		paymentUsecase: paymentUsecase,
		validator:      validator,
		secrets:        secrets,
	}
}

func (h *PaymentHandler) InitiateRedirect(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	// The body is optional
	var req dto.InitiateRedirectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
			return
		}
	}

	session, err := h.paymentUsecase.InitiateRedirect(r.Context(), actor, appointmentID, &req)
	if err != nil {
		writeError(w, err, "Failed to start payment")
		return
	}

	response.Success(w, http.StatusCreated, "Payment session created", session)
}

func (h *PaymentHandler) InitiatePush(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	var req dto.InitiatePushRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
			return
		}
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	initiated, err := h.paymentUsecase.InitiatePush(r.Context(), actor, appointmentID, &req)
	if err != nil {
		writeError(w, err, "Failed to start payment")
		return
	}

	response.Success(w, http.StatusAccepted, "Payment prompt sent", initiated)
}

// RedirectReturn settles the checkout return trip relayed by the redirect provider
func (h *PaymentHandler) RedirectReturn(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readCallback(w, r, h.secrets.Redirect, entity.PaymentRailRedirect)
	if !ok {
		return
	}

	result, err := h.paymentUsecase.ConfirmRedirectReturn(r.Context(), req)
	if err != nil {
		writeError(w, err, "Failed to confirm payment")
		return
	}

	response.Success(w, http.StatusOK, "Payment confirmed", result)
}

// PushCallback settles the asynchronous push rail
func (h *PaymentHandler) PushCallback(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readCallback(w, r, h.secrets.Push, entity.PaymentRailPush)
	if !ok {
		return
	}

	result, err := h.paymentUsecase.Confirm(r.Context(), req, entity.PaymentRailPush)
	if err != nil {
		writeError(w, err, "Failed to confirm payment")
		return
	}

	response.Success(w, http.StatusOK, "Payment confirmed", result)
}

// readCallback verifies the HMAC over the raw body before decoding it
func (h *PaymentHandler) readCallback(w http.ResponseWriter, r *http.Request, secret string, rail entity.PaymentRail) (*dto.SettlementCallbackRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return nil, false
	}

	if !signature.Verify(body, secret, r.Header.Get(signature.Header)) {
		h.log.Warnf("Rejected %s callback with invalid signature from %s", rail, r.RemoteAddr)
		response.Unauthorized(w, "Invalid signature")
		return nil, false
	}

	var req dto.SettlementCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return nil, false
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return nil, false
	}

	return &req, true
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	paymentID, ok := uuidVar(w, r, "id", "payment")
	if !ok {
		return
	}

	refund, err := h.paymentUsecase.Refund(r.Context(), actor, paymentID)
	if err != nil {
		writeError(w, err, "Failed to refund payment")
		return
	}

	response.Success(w, http.StatusCreated, "Payment refunded successfully", refund)
}

func (h *PaymentHandler) GetByAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	payments, err := h.paymentUsecase.ListByAppointment(r.Context(), actor, appointmentID)
	if err != nil {
		writeError(w, err, "Failed to get payments")
		return
	}

	response.Success(w, http.StatusOK, "Payments retrieved successfully", payments)
}
