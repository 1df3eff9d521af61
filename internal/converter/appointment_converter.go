package converter

import (
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
)

func AppointmentToResponse(appointment *entity.Appointment) *dto.AppointmentResponse {
	if appointment == nil {
		return nil
	}

	return &dto.AppointmentResponse{
		ID:              appointment.ID,
		PatientID:       appointment.PatientID,
		DoctorID:        appointment.DoctorID,
		AppointmentDate: appointment.AppointmentDate.Format("2006-01-02"),
		TimeSlot:        appointment.TimeSlot,
		Status:          string(appointment.Status),
		Amount:          appointment.Amount,
		Paid:            appointment.Paid,
		CreatedAt:       appointment.CreatedAt,
		UpdatedAt:       appointment.UpdatedAt,
	}
}

func AppointmentsToResponses(appointments []entity.Appointment) []dto.AppointmentResponse {
	responses := make([]dto.AppointmentResponse, len(appointments))
	for i := range appointments {
		responses[i] = *AppointmentToResponse(&appointments[i])
	}
	return responses
}
