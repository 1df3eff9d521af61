package handler

import (
	"encoding/json"
	"net/http"

	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/usecase"
	"go-clinic-appointment/pkg/response"
	"go-clinic-appointment/pkg/validator"
)

type PrescriptionHandler struct {
	prescriptionUsecase usecase.PrescriptionUsecase
	validator           *validator.CustomValidator
}

func NewPrescriptionHandler(prescriptionUsecase usecase.PrescriptionUsecase, validator *validator.CustomValidator) *PrescriptionHandler {
	return &PrescriptionHandler{
		prescriptionUsecase: prescriptionUsecase,
		validator:           validator,
	}
}

func (h *PrescriptionHandler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	var req dto.CreatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	prescription, err := h.prescriptionUsecase.CreatePrescription(r.Context(), actor, appointmentID, &req)
	if err != nil {
		writeError(w, err, "Failed to create prescription")
		return
	}

	response.Success(w, http.StatusCreated, "Prescription created successfully", prescription)
}

func (h *PrescriptionHandler) GetByAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	prescriptions, err := h.prescriptionUsecase.GetByAppointment(r.Context(), actor, appointmentID)
	if err != nil {
		writeError(w, err, "Failed to get prescriptions")
		return
	}

	response.Success(w, http.StatusOK, "Prescriptions retrieved successfully", prescriptions)
}

func (h *PrescriptionHandler) DeletePrescription(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	prescriptionID, ok := uuidVar(w, r, "id", "prescription")
	if !ok {
		return
	}

	if err := h.prescriptionUsecase.DeletePrescription(r.Context(), actor, prescriptionID); err != nil {
		writeError(w, err, "Failed to delete prescription")
		return
	}

	response.Success(w, http.StatusOK, "Prescription deleted successfully", nil)
}
