package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"parking/internal/middleware"
	"parking/internal/services"
	"parking/internal/store"
	"parking/internal/validator"

	"github.com/go-chi/chi/v5"
)

type startRequest struct {
	Plate string `json:"plate"`
	Gate  string `json:"gate"`
}

func (h *Handler) StartParking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	plate := strings.ToUpper(strings.TrimSpace(req.Plate))
	if err := validator.ValidatePlate(plate); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.sessions.Start(r.Context(), services.StartRequest{
		UserID: userID,
		Plate:  plate,
		Gate:   strings.TrimSpace(req.Gate),
		IP:     r.RemoteAddr,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"session":        sessionPayload(result.Session),
		"ingress_record": recordPayload(result.Ingress),
	})
}

type stopRequest struct {
	Plate string `json:"plate"`
}

func (h *Handler) StopParking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	plate := strings.ToUpper(strings.TrimSpace(req.Plate))
	if err := validator.ValidatePlate(plate); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.sessions.Stop(r.Context(), services.StopRequest{
		UserID: userID,
		Plate:  plate,
		IP:     r.RemoteAddr,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	payload := map[string]any{
		"session":       sessionPayload(result.Session),
		"balance":       valueToMoney(result.BalanceAfter),
		"egress_record": recordPayload(result.Egress),
	}
	if result.Ingress != nil {
		payload["ingress_record"] = recordPayload(*result.Ingress)
	}
	respondJSON(w, http.StatusOK, payload)
}

func (h *Handler) ParkingStatus(w http.ResponseWriter, r *http.Request) {
	plate := strings.ToUpper(chi.URLParam(r, "plate"))
	if err := validator.ValidatePlate(plate); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.sessions.Status(r.Context(), plate)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	payload := map[string]any{
		"vehicle": map[string]any{
			"plate":         result.Vehicle.Plate,
			"is_parked":     result.Vehicle.IsParked,
			"last_entry_at": result.Vehicle.LastEntryAt,
		},
		"session": nil,
	}
	if result.Session != nil {
		payload["session"] = sessionPayload(*result.Session)
	}
	respondJSON(w, http.StatusOK, payload)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch err {
	case services.ErrUserNotFound, services.ErrVehicleNotFound, services.ErrSessionNotFound:
		respondError(w, http.StatusNotFound, err.Error())
	case services.ErrVehicleParked, services.ErrSessionNotActive:
		respondError(w, http.StatusConflict, err.Error())
	case services.ErrInsufficientBalance:
		respondError(w, http.StatusPaymentRequired, err.Error())
	case services.ErrInvalidAmount, services.ErrMissingGate, services.ErrMissingReason:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "operation failed")
	}
}

func sessionPayload(session store.SessionRow) map[string]any {
	return map[string]any{
		"id":           session.ID,
		"plate":        session.Plate,
		"user_id":      session.UserID,
		"gate":         session.Gate,
		"started_at":   session.StartedAt,
		"ended_at":     session.EndedAt,
		"real_hours":   session.RealHours,
		"billed_hours": session.BilledHours,
		"amount":       valueToMoney(session.Amount),
		"status":       session.Status,
	}
}

func recordPayload(record store.GateRecordRow) map[string]any {
	return map[string]any{
		"id":            record.ID,
		"type":          record.Type,
		"status":        record.Status,
		"plate":         record.Plate,
		"gate":          record.Gate,
		"user_document": record.UserDocument,
		"user_name":     record.UserName,
		"user_class":    record.UserClass,
		"hourly_rate":   record.HourlyRate,
		"rate_source":   record.RateSource,
		"amount":        valueToMoney(record.Amount),
		"real_hours":    record.RealHours,
		"billed_hours":  record.BilledHours,
	}
}
