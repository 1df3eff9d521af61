package handler

import (
	"net/http"

	"go-clinic-appointment/internal/usecase"
	"go-clinic-appointment/pkg/response"
)

type DoctorHandler struct {
	doctorUsecase usecase.DoctorUsecase
}

func NewDoctorHandler(doctorUsecase usecase.DoctorUsecase) *DoctorHandler {
	return &DoctorHandler{
		doctorUsecase: doctorUsecase,
	}
}

func (h *DoctorHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.doctorUsecase.ListDoctors(r.Context())
	if err != nil {
		response.InternalServerError(w, "Failed to get doctors")
		return
	}

	response.Success(w, http.StatusOK, "Doctors retrieved successfully", doctors)
}

func (h *DoctorHandler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidVar(w, r, "id", "doctor")
	if !ok {
		return
	}

	doctor, err := h.doctorUsecase.GetDoctor(r.Context(), doctorID)
	if err != nil {
		writeError(w, err, "Failed to get doctor")
		return
	}

	response.Success(w, http.StatusOK, "Doctor retrieved successfully", doctor)
}
