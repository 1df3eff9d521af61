package converter

import (
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
)

// MedicinesFromRequest keeps every entry, blank ones included, so validation
// can reject them instead of silently dropping them.
func MedicinesFromRequest(reqs []dto.MedicineRequest) entity.Medicines {
	medicines := make(entity.Medicines, len(reqs))
	for i, r := range reqs {
		medicines[i] = entity.Medicine{
			Name:         r.Name,
			Dosage:       r.Dosage,
			Instructions: r.Instructions,
		}
	}
	return medicines
}

func PrescriptionToResponse(prescription *entity.Prescription) *dto.PrescriptionResponse {
	if prescription == nil {
		return nil
	}

	medicines := make([]dto.MedicineResponse, len(prescription.Medicines))
	for i, m := range prescription.Medicines {
		medicines[i] = dto.MedicineResponse{
			Name:         m.Name,
			Dosage:       m.Dosage,
			Instructions: m.Instructions,
		}
	}

	return &dto.PrescriptionResponse{
		ID:            prescription.ID,
		AppointmentID: prescription.AppointmentID,
		DoctorID:      prescription.DoctorID,
		PatientID:     prescription.PatientID,
		Medicines:     medicines,
		Notes:         prescription.Notes,
		IssuedAt:      prescription.IssuedAt,
	}
}

func PrescriptionsToResponses(prescriptions []entity.Prescription) []dto.PrescriptionResponse {
	responses := make([]dto.PrescriptionResponse, len(prescriptions))
	for i := range prescriptions {
		responses[i] = *PrescriptionToResponse(&prescriptions[i])
	}
	return responses
}
