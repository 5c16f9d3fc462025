package handlers

import (
	"encoding/json"
	"net/http"

	"parking/internal/auth"
	"parking/internal/middleware"
	"parking/internal/models"
	"parking/internal/store"
	"parking/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type registerRequest struct {
	DocumentID      string `json:"document_id"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	MembershipClass string `json:"membership_class"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateDocument(req.DocumentID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateName(req.Name); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	membershipClass := req.MembershipClass
	if membershipClass == "" {
		membershipClass = models.MembershipNonAssociated
	}
	if membershipClass != models.MembershipAssociated && membershipClass != models.MembershipNonAssociated {
		respondError(w, http.StatusBadRequest, "invalid membership class")
		return
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to secure password")
		return
	}
	userID := uuid.NewString()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.users.Create(r.Context(), tx, store.UserInput{
			ID:              userID,
			DocumentID:      req.DocumentID,
			Name:            req.Name,
			PasswordHash:    passwordHash,
			MembershipClass: membershipClass,
			Balance:         0,
		}); err != nil {
			return err
		}
		hasAdmin, err := h.admin.HasAnyAdmin(r.Context())
		if err != nil {
			return err
		}
		if !hasAdmin {
			if err := h.admin.CreateAdmin(r.Context(), tx, userID, true, nil); err != nil {
				return err
			}
		}
		afterData, _ := json.Marshal(map[string]string{
			"document_id":      req.DocumentID,
			"membership_class": membershipClass,
		})
		return h.audit.Log(r.Context(), tx, store.AuditInput{
			ActorUserID: userID,
			Action:      "register",
			EntityType:  "user",
			EntityID:    userID,
			Before:      "{}",
			After:       string(afterData),
			IP:          r.RemoteAddr,
		})
	})
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok {
			if pgErr.Code == "23505" {
				respondError(w, http.StatusConflict, "document already registered")
				return
			}
		}
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, userID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"token": token,
	})
}

type loginRequest struct {
	DocumentID string `json:"document_id"`
	Password   string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.users.GetByDocument(r.Context(), req.DocumentID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.Active {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"token": token,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":               user.ID,
		"document_id":      user.DocumentID,
		"name":             user.Name,
		"membership_class": user.MembershipClass,
		"balance":          valueToMoney(user.Balance),
		"active":           user.Active,
		"created_at":       user.CreatedAt,
	})
}
