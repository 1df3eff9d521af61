package converter

import (
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
)

func PaymentToResponse(payment *entity.Payment) *dto.PaymentResponse {
	if payment == nil {
		return nil
	}

	return &dto.PaymentResponse{
		ID:            payment.ID,
		AppointmentID: payment.AppointmentID,
		Amount:        payment.Amount,
		Status:        string(payment.Status),
		TransactionID: payment.TransactionID,
		Rail:          string(payment.Rail),
		ReviewReason:  payment.ReviewReason,
		RefundOf:      payment.RefundOf,
		CreatedAt:     payment.CreatedAt,
	}
}

func PaymentsToResponses(payments []entity.Payment) []dto.PaymentResponse {
	responses := make([]dto.PaymentResponse, len(payments))
	for i := range payments {
		responses[i] = *PaymentToResponse(&payments[i])
	}
	return responses
}
