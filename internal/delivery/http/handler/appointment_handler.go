package handler

import (
	"encoding/json"
	"net/http"

	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/usecase"
	"go-clinic-appointment/pkg/response"
	"go-clinic-appointment/pkg/validator"
)

type AppointmentHandler struct {
	appointmentUsecase usecase.AppointmentUsecase
	validator          *validator.CustomValidator
}

func NewAppointmentHandler(appointmentUsecase usecase.AppointmentUsecase, validator *validator.CustomValidator) *AppointmentHandler {
	return &AppointmentHandler{
		appointmentUsecase: appointmentUsecase,
		validator:          validator,
	}
}

func (h *AppointmentHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req dto.CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	appointment, err := h.appointmentUsecase.CreateAppointment(r.Context(), actor, &req)
	if err != nil {
		writeError(w, err, "Failed to create appointment")
		return
	}

	response.Success(w, http.StatusCreated, "Appointment created successfully", appointment)
}

func (h *AppointmentHandler) GetMyAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	appointments, err := h.appointmentUsecase.ListMyAppointments(r.Context(), actor)
	if err != nil {
		writeError(w, err, "Failed to get appointments")
		return
	}

	response.Success(w, http.StatusOK, "Appointments retrieved successfully", appointments)
}

func (h *AppointmentHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	appointment, err := h.appointmentUsecase.GetAppointment(r.Context(), actor, appointmentID)
	if err != nil {
		writeError(w, err, "Failed to get appointment")
		return
	}

	response.Success(w, http.StatusOK, "Appointment retrieved successfully", appointment)
}

func (h *AppointmentHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	var req dto.TransitionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	appointment, err := h.appointmentUsecase.TransitionStatus(r.Context(), actor, appointmentID, &req)
	if err != nil {
		writeError(w, err, "Failed to update appointment status")
		return
	}

	response.Success(w, http.StatusOK, "Appointment status updated successfully", appointment)
}

func (h *AppointmentHandler) OverrideAmount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	var req dto.OverrideAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	appointment, err := h.appointmentUsecase.OverrideAmount(r.Context(), actor, appointmentID, &req)
	if err != nil {
		writeError(w, err, "Failed to override appointment amount")
		return
	}

	response.Success(w, http.StatusOK, "Appointment amount updated successfully", appointment)
}

func (h *AppointmentHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	appointmentID, ok := uuidVar(w, r, "id", "appointment")
	if !ok {
		return
	}

	if err := h.appointmentUsecase.DeleteAppointment(r.Context(), actor, appointmentID); err != nil {
		writeError(w, err, "Failed to delete appointment")
		return
	}

	response.Success(w, http.StatusOK, "Appointment deleted successfully", nil)
}
