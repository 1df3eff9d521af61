package converter

import (
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
)

// DoctorProfileToResponse converts a DoctorProfile entity to DoctorResponse DTO
func DoctorProfileToResponse(profile *entity.DoctorProfile) *dto.DoctorResponse {
	if profile == nil {
		return nil
	}

	return &dto.DoctorResponse{
		ID:              profile.UserID,
		FullName:        profile.User.FullName,
		Specialization:  profile.Specialization,
		Biography:       profile.Biography,
		ConsultationFee: profile.ConsultationFee,
	}
}

func DoctorProfilesToResponses(profiles []entity.DoctorProfile) []dto.DoctorResponse {
	responses := make([]dto.DoctorResponse, len(profiles))
	for i := range profiles {
		responses[i] = *DoctorProfileToResponse(&profiles[i])
	}
	return responses
}
