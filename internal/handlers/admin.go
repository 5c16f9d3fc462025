package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"parking/internal/auth"
	"parking/internal/middleware"
	"parking/internal/models"
	"parking/internal/services"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type rechargeRequest struct {
	DocumentID string `json:"document_id"`
	Amount     string `json:"amount"`
	Reason     string `json:"reason"`
}

// Recharge tops up a user's balance and returns the numbered receipt.
func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	user, err := h.users.GetByDocument(r.Context(), req.DocumentID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	result, err := h.ledger.Credit(r.Context(), services.CreditRequest{
		UserID:      user.ID,
		AmountMinor: amountMinor,
		ActorID:     actorID,
		Reason:      req.Reason,
		IP:          r.RemoteAddr,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"balance":        valueToMoney(result.BalanceAfter),
		"receipt_id":     result.ReceiptID,
		"receipt_number": result.ReceiptNumber,
	})
}

type adjustRequest struct {
	UserID string `json:"user_id"`
	Delta  string `json:"delta"`
	Reason string `json:"reason"`
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	deltaMinor, err := parseSignedMinor(req.Delta)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	balance, err := h.ledger.Adjust(r.Context(), services.AdjustRequest{
		UserID:     req.UserID,
		DeltaMinor: deltaMinor,
		ActorID:    actorID,
		Reason:     req.Reason,
		IP:         r.RemoteAddr,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balance": valueToMoney(balance),
	})
}

type createTariffRequest struct {
	UserClass  string `json:"user_class"`
	HourlyRate string `json:"hourly_rate"`
}

// CreateTariff activates a new class tariff and retires the previous active
// one so the one-active-per-class convention holds.
func (h *Handler) CreateTariff(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createTariffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.UserClass != models.MembershipAssociated && req.UserClass != models.MembershipNonAssociated {
		respondError(w, http.StatusBadRequest, "invalid user class")
		return
	}
	rate, err := parseRate(req.HourlyRate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_rate")
		return
	}
	tariffID := uuid.NewString()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		beforeData := "{}"
		previous, err := h.tariffs.GetActiveByClassForUpdate(r.Context(), tx, req.UserClass)
		if err == nil {
			if _, err := h.tariffs.Deactivate(r.Context(), tx, previous.ID); err != nil {
				return err
			}
			data, _ := json.Marshal(map[string]string{"hourly_rate": previous.HourlyRate})
			beforeData = string(data)
		} else if err != sql.ErrNoRows {
			return err
		}
		if err := h.tariffs.Create(r.Context(), tx, tariffID, req.UserClass, rate.StringFixed(2)); err != nil {
			return err
		}
		afterData, _ := json.Marshal(map[string]string{
			"user_class":  req.UserClass,
			"hourly_rate": rate.StringFixed(2),
		})
		return h.audit.Log(r.Context(), tx, store.AuditInput{
			ActorUserID: actorID,
			Action:      "tariff_create",
			EntityType:  "tariff",
			EntityID:    tariffID,
			Before:      beforeData,
			After:       string(afterData),
			IP:          r.RemoteAddr,
		})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create tariff")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":          tariffID,
		"user_class":  req.UserClass,
		"hourly_rate": rate.StringFixed(2),
	})
}

func (h *Handler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	rows, err := h.tariffs.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load tariffs")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"id":          row.ID,
			"user_class":  row.UserClass,
			"hourly_rate": row.HourlyRate,
			"active":      row.Active,
			"created_at":  row.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type assignTariffRequest struct {
	TariffID *string `json:"tariff_id"`
}

// AssignTariff sets or clears a per-user tariff override.
func (h *Handler) AssignTariff(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "id")
	var req assignTariffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.users.GetByID(r.Context(), targetID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	if req.TariffID != nil {
		if _, err := h.tariffs.GetByID(r.Context(), *req.TariffID); err != nil {
			if err == sql.ErrNoRows {
				respondError(w, http.StatusNotFound, "tariff not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "unable to resolve tariff")
			return
		}
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.users.AssignTariff(r.Context(), tx, user.ID, req.TariffID); err != nil {
			return err
		}
		beforeData, _ := json.Marshal(map[string]any{"assigned_tariff_id": user.AssignedTariffID})
		afterData, _ := json.Marshal(map[string]any{"assigned_tariff_id": req.TariffID})
		return h.audit.Log(r.Context(), tx, store.AuditInput{
			ActorUserID: actorID,
			Action:      "tariff_assign",
			EntityType:  "user",
			EntityID:    user.ID,
			Before:      string(beforeData),
			After:       string(afterData),
			IP:          r.RemoteAddr,
		})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to assign tariff")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "id")
	user, err := h.users.GetByID(r.Context(), targetID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.users.Deactivate(r.Context(), tx, user.ID); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, store.AuditInput{
			ActorUserID: actorID,
			Action:      "user_deactivate",
			EntityType:  "user",
			EntityID:    user.ID,
			Before:      `{"active":true}`,
			After:       `{"active":false}`,
			IP:          r.RemoteAddr,
		})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to deactivate user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.users.ListAll(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load users")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"id":               row.ID,
			"document_id":      row.DocumentID,
			"name":             row.Name,
			"membership_class": row.MembershipClass,
			"balance":          valueToMoney(row.Balance),
			"active":           row.Active,
			"created_at":       row.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) AdminListRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	recordType := query.Get("type")
	if recordType != "" && recordType != models.RecordIngress && recordType != models.RecordEgress {
		respondError(w, http.StatusBadRequest, "invalid record type")
		return
	}
	rows, err := h.records.ListAll(r.Context(), recordType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load records")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, recordPayload(row))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

type promoteRequest struct {
	DocumentID string `json:"document_id"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	target, err := h.users.GetByDocument(r.Context(), req.DocumentID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, target.ID, false, &userID); err != nil {
			return err
		}
		afterData, _ := json.Marshal(map[string]string{"target_user_id": target.ID})
		return h.audit.Log(r.Context(), tx, store.AuditInput{
			ActorUserID: userID,
			Action:      "promote_admin",
			EntityType:  "admin",
			EntityID:    target.ID,
			Before:      "{}",
			After:       string(afterData),
			IP:          r.RemoteAddr,
		})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id"`
	Role        string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req grantRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdminUserID == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	isAdmin, targetSuper, err := h.admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if targetSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role); err != nil {
			return err
		}
		afterData, _ := json.Marshal(map[string]string{
			"admin_user_id": req.AdminUserID,
			"role":          req.Role,
		})
		return h.audit.Log(r.Context(), tx, store.AuditInput{
			ActorUserID: userID,
			Action:      "grant_role",
			EntityType:  "admin_role",
			EntityID:    req.AdminUserID,
			Before:      "{}",
			After:       string(afterData),
			IP:          r.RemoteAddr,
		})
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
