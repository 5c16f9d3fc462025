package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"parking/internal/middleware"
	"parking/internal/store"
	"parking/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type registerVehicleRequest struct {
	Plate string `json:"plate"`
}

func (h *Handler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req registerVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	plate := strings.ToUpper(strings.TrimSpace(req.Plate))
	if err := validator.ValidatePlate(plate); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	vehicleID := uuid.NewString()
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.vehicles.Create(r.Context(), tx, vehicleID, plate, userID); err != nil {
			return err
		}
		afterData, _ := json.Marshal(map[string]string{"plate": plate})
		return h.audit.Log(r.Context(), tx, store.AuditInput{
			ActorUserID: userID,
			Action:      "vehicle_register",
			EntityType:  "vehicle",
			EntityID:    vehicleID,
			Before:      "{}",
			After:       string(afterData),
			IP:          r.RemoteAddr,
		})
	})
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok {
			if pgErr.Code == "23505" {
				respondError(w, http.StatusConflict, "plate already registered")
				return
			}
		}
		respondError(w, http.StatusInternalServerError, "unable to register vehicle")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"id":    vehicleID,
		"plate": plate,
	})
}

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	vehicles, err := h.vehicles.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load vehicles")
		return
	}
	normalized := make([]map[string]any, 0, len(vehicles))
	for _, vehicle := range vehicles {
		normalized = append(normalized, map[string]any{
			"id":            vehicle.ID,
			"plate":         vehicle.Plate,
			"is_parked":     vehicle.IsParked,
			"last_entry_at": vehicle.LastEntryAt,
			"created_at":    vehicle.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}
