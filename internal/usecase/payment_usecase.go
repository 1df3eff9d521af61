package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-clinic-appointment/internal/converter"
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/domain/policy"
	"go-clinic-appointment/internal/domain/provider"
	"go-clinic-appointment/internal/domain/repository"
	"go-clinic-appointment/internal/infrastructure/metrics"
	"go-clinic-appointment/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrAmountMismatch          = errors.New("amount does not match the appointment amount")
	ErrPhoneNumberRequired     = errors.New("phone number is required for push payments")
	ErrProviderFailure         = errors.New("payment provider failed, try again later")
	ErrProviderUnavailable     = provider.ErrProviderUnavailable
	ErrPaymentRejected         = errors.New("payment provider rejected the request, check the payment details")
	ErrTransactionIDRequired   = errors.New("transaction id is required")
	ErrInvalidSettlementStatus = errors.New("settlement status must be completed or failed")
	ErrInvalidRail             = errors.New("unknown payment rail")
	ErrTransactionConflict     = errors.New("transaction id is already recorded for a different appointment")
	ErrSessionMismatch         = errors.New("payment session does not belong to this appointment")
	ErrPaymentNotRefundable    = errors.New("only settled payments can be refunded")
	ErrPaymentAlreadyRefunded  = errors.New("payment has already been refunded")
)

// maxSettleAttempts bounds retries after losing a unique-index race to a
// concurrent confirmation. The second attempt always sees the winner.
const maxSettleAttempts = 2

// PushStatusAwaiting is reported after a push prompt was accepted by the provider
const PushStatusAwaiting = "awaiting_confirmation"

type PaymentUsecase interface {
	InitiateRedirect(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID, req *dto.InitiateRedirectRequest) (*dto.RedirectSessionResponse, error)
	InitiatePush(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID, req *dto.InitiatePushRequest) (*dto.PushInitiatedResponse, error)
	Confirm(ctx context.Context, req *dto.SettlementCallbackRequest, rail entity.PaymentRail) (*dto.SettlementResponse, error)
	ConfirmRedirectReturn(ctx context.Context, req *dto.SettlementCallbackRequest) (*dto.SettlementResponse, error)
	Refund(ctx context.Context, actor entity.Actor, paymentID uuid.UUID) (*dto.PaymentResponse, error)
	ListByAppointment(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID) (*dto.PaymentListResponse, error)
}

// PaymentConfig carries the rail settings the usecase needs
type PaymentConfig struct {
	RedirectReturnURL string
	SessionTTL        time.Duration
}

type paymentUsecase struct {
	log                *logrus.Logger
	tx                 repository.Transactor
	appointmentRepo    repository.AppointmentRepository
	paymentRepo        repository.PaymentRepository
	patientProfileRepo repository.PatientProfileRepository
	redirect           provider.RedirectProvider
	push               provider.PushProvider
	sessions           service.SessionStore
	audit              service.AuditService
	publisher          service.EventPublisher
	metrics            *metrics.Metrics
	config             PaymentConfig
	gate               gate
}

func NewPaymentUsecase(
	log *logrus.Logger,
	tx repository.Transactor,
	appointmentRepo repository.AppointmentRepository,
	paymentRepo repository.PaymentRepository,
	patientProfileRepo repository.PatientProfileRepository,
	redirect provider.RedirectProvider,
	push provider.PushProvider,
	sessions service.SessionStore,
	audit service.AuditService,
	publisher service.EventPublisher,
	m *metrics.Metrics,
	config PaymentConfig,
) PaymentUsecase {
	return &paymentUsecase{
		log:                log,
		tx:                 tx,
		appointmentRepo:    appointmentRepo,
		paymentRepo:        paymentRepo,
		patientProfileRepo: patientProfileRepo,
		redirect:           redirect,
		push:               push,
		sessions:           sessions,
		audit:              audit,
		publisher:          publisher,
		metrics:            m,
		config:             config,
		gate:               newGate(log, m),
	}
}

// settlement is the outcome of one confirmation
type settlement struct {
	payment        *entity.Payment
	duplicate      bool
	paidFlipped    bool
	amountMismatch bool
}

func (s *settlement) toResponse() *dto.SettlementResponse {
	return &dto.SettlementResponse{
		Payment:        *converter.PaymentToResponse(s.payment),
		Duplicate:      s.duplicate,
		PaidFlipped:    s.paidFlipped,
		AmountMismatch: s.amountMismatch,
	}
}

// payableAppointment loads the appointment and checks the actor may pay for it
func (u *paymentUsecase) payableAppointment(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID, amount *decimal.Decimal) (*entity.Appointment, error) {
	appointment, err := u.appointmentRepo.FindByID(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to find appointment: %+v", err)
		return nil, err
	}
	if appointment == nil {
		return nil, ErrAppointmentNotFound
	}

	if err := u.gate.authorize(actor, policy.ActionInitiatePayment, policy.Target{Appointment: appointment}); err != nil {
		return nil, err
	}

	if amount != nil && !amount.Equal(appointment.Amount) {
		return nil, ErrAmountMismatch
	}
	return appointment, nil
}

func (u *paymentUsecase) providerError(rail string, err error) error {
	if errors.Is(err, provider.ErrProviderUnavailable) {
		u.log.Warnf("Payment provider %s unavailable", rail)
		return ErrProviderUnavailable
	}
	if errors.Is(err, provider.ErrProviderRejected) {
		u.log.Infof("Payment provider %s rejected the request: %v", rail, err)
		return fmt.Errorf("%w: %v", ErrPaymentRejected, err)
	}
	u.log.Warnf("Failed to call payment provider %s: %+v", rail, err)
	return fmt.Errorf("%w: %v", ErrProviderFailure, err)
}

func (u *paymentUsecase) InitiateRedirect(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID, req *dto.InitiateRedirectRequest) (*dto.RedirectSessionResponse, error) {
	appointment, err := u.payableAppointment(ctx, actor, appointmentID, req.Amount)
	if err != nil {
		return nil, err
	}

	session, err := u.redirect.OpenSession(ctx, provider.RedirectSessionRequest{
		SessionID:     uuid.NewString(),
		AppointmentID: appointment.ID,
		Amount:        appointment.Amount,
		ReturnURL:     u.config.RedirectReturnURL,
	})
	if err != nil {
		return nil, u.providerError(string(entity.PaymentRailRedirect), err)
	}

	// The return trip still settles without the session; it only loses the
	// appointment cross-check.
	if err := u.sessions.Save(ctx, service.RedirectSession{
		SessionID:     session.SessionID,
		AppointmentID: appointment.ID,
		Amount:        appointment.Amount,
	}, u.config.SessionTTL); err != nil {
		u.log.Warnf("Failed to store redirect session: %+v", err)
	}

	u.log.Infof("Redirect session %s opened for appointment %s", session.SessionID, appointment.ID)

	return &dto.RedirectSessionResponse{
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
	}, nil
}

func (u *paymentUsecase) InitiatePush(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID, req *dto.InitiatePushRequest) (*dto.PushInitiatedResponse, error) {
	appointment, err := u.payableAppointment(ctx, actor, appointmentID, req.Amount)
	if err != nil {
		return nil, err
	}

	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		profile, err := u.patientProfileRepo.FindByUserID(ctx, appointment.PatientID)
		if err != nil {
			u.log.Warnf("Failed to find patient profile: %+v", err)
			return nil, err
		}
		if profile != nil {
			phone = profile.PhoneNumber
		}
	}
	if phone == "" {
		return nil, ErrPhoneNumberRequired
	}

	if err := u.push.Push(ctx, provider.PushRequest{
		AppointmentID: appointment.ID,
		Amount:        appointment.Amount,
		PhoneNumber:   phone,
	}); err != nil {
		return nil, u.providerError(string(entity.PaymentRailPush), err)
	}

	u.log.Infof("Push payment requested for appointment %s", appointment.ID)

	return &dto.PushInitiatedResponse{
		AppointmentID: appointment.ID,
		PhoneNumber:   phone,
		Status:        PushStatusAwaiting,
	}, nil
}

// ConfirmRedirectReturn settles the browser return trip. A known session must
// belong to the appointment being settled. The session is only removed once
// the settlement went through, so a failed attempt can be retried against it.
func (u *paymentUsecase) ConfirmRedirectReturn(ctx context.Context, req *dto.SettlementCallbackRequest) (*dto.SettlementResponse, error) {
	var session *service.RedirectSession
	if req.SessionID != "" {
		var err error
		session, err = u.sessions.Get(ctx, req.SessionID)
		if err != nil {
			u.log.Warnf("Failed to read redirect session: %+v", err)
		}
		if session != nil && session.AppointmentID != req.AppointmentID {
			u.log.Warnf("Redirect session %s belongs to appointment %s, not %s", req.SessionID, session.AppointmentID, req.AppointmentID)
			return nil, ErrSessionMismatch
		}
	}

	result, err := u.Confirm(ctx, req, entity.PaymentRailRedirect)
	if err != nil {
		return nil, err
	}

	if session != nil {
		if _, err := u.sessions.Consume(ctx, session.SessionID); err != nil {
			u.log.Warnf("Failed to remove redirect session %s: %+v", session.SessionID, err)
		}
	}
	return result, nil
}

// Confirm is the single settlement boundary both rails converge on. It may be
// called any number of times with the same transaction id.
func (u *paymentUsecase) Confirm(ctx context.Context, req *dto.SettlementCallbackRequest, rail entity.PaymentRail) (*dto.SettlementResponse, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, ErrTransactionIDRequired
	}
	status := entity.PaymentStatus(req.Status)
	if status != entity.PaymentStatusCompleted && status != entity.PaymentStatusFailed {
		return nil, ErrInvalidSettlementStatus
	}
	if !rail.IsValid() {
		return nil, ErrInvalidRail
	}
	if req.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	var (
		result *settlement
		err    error
	)
	for attempt := 1; attempt <= maxSettleAttempts; attempt++ {
		result, err = u.settle(ctx, req, status, rail)
		if err == nil {
			break
		}
		if isDuplicateKeyError(err, constraintPaymentTransactionStatus) || isDuplicateKeyError(err, constraintPaymentOneCompleted) {
			u.log.Infof("Concurrent settlement for transaction %s, re-reading (attempt %d)", req.TransactionID, attempt)
			continue
		}
		return nil, err
	}
	if err != nil {
		u.log.Warnf("Failed to settle transaction %s: %+v", req.TransactionID, err)
		return nil, err
	}

	u.recordSettlement(ctx, result)
	return result.toResponse(), nil
}

// findRecorded returns the ledger row already holding this transaction id.
// A completed (or flagged pending) row answers every replay; a failed row
// only answers a replayed failure.
func (u *paymentUsecase) findRecorded(ctx context.Context, transactionID string, status entity.PaymentStatus) (*entity.Payment, error) {
	lookups := []entity.PaymentStatus{entity.PaymentStatusCompleted, entity.PaymentStatusPending}
	if status == entity.PaymentStatusFailed {
		lookups = append(lookups, entity.PaymentStatusFailed)
	}

	for _, s := range lookups {
		payment, err := u.paymentRepo.FindByTransactionID(ctx, transactionID, s)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	return nil, nil
}

func (u *paymentUsecase) settle(ctx context.Context, req *dto.SettlementCallbackRequest, status entity.PaymentStatus, rail entity.PaymentRail) (*settlement, error) {
	var result *settlement

	err := u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := u.findRecorded(ctx, req.TransactionID, status)
		if err != nil {
			u.log.Warnf("Failed to find payment by transaction: %+v", err)
			return err
		}
		if existing != nil {
			if existing.AppointmentID != req.AppointmentID {
				u.log.Errorf("Transaction %s replayed for appointment %s but recorded for %s", req.TransactionID, req.AppointmentID, existing.AppointmentID)
				return ErrTransactionConflict
			}
			result = &settlement{
				payment:        existing,
				duplicate:      true,
				amountMismatch: strings.Contains(existing.ReviewReason, entity.ReviewReasonAmountMismatch),
			}
			return nil
		}

		appointment, err := u.appointmentRepo.FindByID(ctx, req.AppointmentID)
		if err != nil {
			u.log.Warnf("Failed to find appointment: %+v", err)
			return err
		}
		if appointment == nil {
			return ErrAppointmentNotFound
		}

		payment := &entity.Payment{
			AppointmentID: appointment.ID,
			Amount:        req.Amount,
			Status:        status,
			TransactionID: req.TransactionID,
			Rail:          rail,
		}
		result = &settlement{payment: payment}

		if status == entity.PaymentStatusCompleted {
			// The provider's amount is recorded as-is; discrepancies are
			// flagged for manual review, never rejected.
			if !req.Amount.Equal(appointment.Amount) {
				result.amountMismatch = true
				payment.AddReviewReason(entity.ReviewReasonAmountMismatch)
				u.log.Warnf("Settlement %s for appointment %s paid %s but appointment amount is %s",
					req.TransactionID, appointment.ID, req.Amount.StringFixed(2), appointment.Amount.StringFixed(2))
			}
			settled := appointment.Paid
			if appointment.IsCancelled() {
				payment.AddReviewReason(entity.ReviewReasonAppointmentInvalid)
				u.log.Warnf("Settlement %s received for cancelled appointment %s", req.TransactionID, appointment.ID)

				// Cancelled appointments never flip paid, so an earlier
				// settlement is only visible in the ledger.
				if !settled {
					settled, err = u.hasCompletedPayment(ctx, appointment.ID)
					if err != nil {
						u.log.Warnf("Failed to list payments: %+v", err)
						return err
					}
				}
			}
			if settled {
				payment.Status = entity.PaymentStatusPending
				payment.AddReviewReason(entity.ReviewReasonDoubleSettlement)
				u.log.Warnf("Appointment %s already paid, transaction %s held for review", appointment.ID, req.TransactionID)
			}
		}

		if err := u.paymentRepo.Create(ctx, payment); err != nil {
			return err
		}

		if payment.Status == entity.PaymentStatusCompleted && !appointment.IsCancelled() {
			rows, err := u.appointmentRepo.MarkPaid(ctx, appointment.ID)
			if err != nil {
				u.log.Warnf("Failed to mark appointment paid: %+v", err)
				return err
			}
			result.paidFlipped = rows == 1
		}

		action := entity.AuditActionPaymentSettle
		if payment.NeedsReview() {
			action = entity.AuditActionPaymentFlagged
		}
		return u.audit.LogCreate(ctx, nil, action, "payment", payment.ID.String(), converter.PaymentToResponse(payment))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (u *paymentUsecase) hasCompletedPayment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	payments, err := u.paymentRepo.FindByAppointmentID(ctx, appointmentID)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.Status == entity.PaymentStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (u *paymentUsecase) recordSettlement(ctx context.Context, result *settlement) {
	payment := result.payment

	if result.duplicate {
		if u.metrics != nil {
			u.metrics.DuplicateCallbacks.Inc()
		}
		u.log.Infof("Duplicate settlement for transaction %s ignored", payment.TransactionID)
		return
	}

	if u.metrics != nil {
		u.metrics.SettlementsTotal.WithLabelValues(string(payment.Rail), string(payment.Status)).Inc()
		if payment.NeedsReview() {
			for _, reason := range strings.Split(payment.ReviewReason, ",") {
				u.metrics.SettlementsFlagged.WithLabelValues(reason).Inc()
			}
		}
	}

	u.log.Infof("Recorded %s payment %s for appointment %s via %s", payment.Status, payment.TransactionID, payment.AppointmentID, payment.Rail)

	if result.paidFlipped {
		publish(ctx, u.log, u.publisher, entity.NewDomainEvent(entity.EventAppointmentPaid, payment.AppointmentID.String(), map[string]interface{}{
			"payment_id":     payment.ID.String(),
			"transaction_id": payment.TransactionID,
			"amount":         payment.Amount.StringFixed(2),
			"rail":           string(payment.Rail),
		}))
	}
	if payment.NeedsReview() {
		publish(ctx, u.log, u.publisher, entity.NewDomainEvent(entity.EventPaymentFlagged, payment.AppointmentID.String(), map[string]interface{}{
			"payment_id":     payment.ID.String(),
			"transaction_id": payment.TransactionID,
			"review_reason":  payment.ReviewReason,
		}))
	}
}

// Refund appends a refunded row mirroring the original. The appointment's
// paid flag is left as is.
func (u *paymentUsecase) Refund(ctx context.Context, actor entity.Actor, paymentID uuid.UUID) (*dto.PaymentResponse, error) {
	if err := u.gate.authorize(actor, policy.ActionRefundPayment, policy.Target{}); err != nil {
		return nil, err
	}

	original, err := u.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		u.log.Warnf("Failed to find payment: %+v", err)
		return nil, err
	}
	if original == nil {
		return nil, ErrPaymentNotFound
	}
	if !original.IsRefundable() {
		return nil, ErrPaymentNotRefundable
	}

	refund := &entity.Payment{
		AppointmentID: original.AppointmentID,
		Amount:        original.Amount,
		Status:        entity.PaymentStatusRefunded,
		TransactionID: original.TransactionID,
		Rail:          original.Rail,
		RefundOf:      &original.ID,
	}

	err = u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := u.paymentRepo.Create(ctx, refund); err != nil {
			if isDuplicateKeyError(err, constraintPaymentTransactionStatus) {
				return ErrPaymentAlreadyRefunded
			}
			u.log.Warnf("Failed to create refund: %+v", err)
			return err
		}
		return u.audit.LogCreate(ctx, &actor.ID, entity.AuditActionPaymentRefund, "payment", refund.ID.String(), converter.PaymentToResponse(refund))
	})
	if err != nil {
		return nil, err
	}

	if u.metrics != nil {
		u.metrics.Refunds.Inc()
	}
	u.log.Infof("Payment %s refunded by admin %s", original.ID, actor.ID)
	publish(ctx, u.log, u.publisher, entity.NewDomainEvent(entity.EventPaymentRefunded, refund.AppointmentID.String(), map[string]interface{}{
		"payment_id": refund.ID.String(),
		"refund_of":  original.ID.String(),
		"amount":     refund.Amount.StringFixed(2),
	}))

	return converter.PaymentToResponse(refund), nil
}

// ListByAppointment returns the ledger for an appointment. Admins can still
// read the ledger of a deleted appointment.
func (u *paymentUsecase) ListByAppointment(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID) (*dto.PaymentListResponse, error) {
	appointment, err := u.appointmentRepo.FindByID(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to find appointment: %+v", err)
		return nil, err
	}
	if appointment == nil && !actor.IsAdmin() {
		return nil, ErrAppointmentNotFound
	}

	if err := u.gate.authorize(actor, policy.ActionViewPayments, policy.Target{Appointment: appointment}); err != nil {
		return nil, err
	}

	payments, err := u.paymentRepo.FindByAppointmentID(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to list payments: %+v", err)
		return nil, err
	}

	return &dto.PaymentListResponse{
		Payments: converter.PaymentsToResponses(payments),
		Total:    len(payments),
	}, nil
}
