package handlers

import (
	"net/http"

	"parking/internal/config"
	"parking/internal/db"
	"parking/internal/middleware"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner db.TxRunner
	cfg      config.Config
	users    UserStore
	vehicles VehicleStore
	tariffs  TariffStore
	records  GateRecordStore
	receipts ReceiptStore
	admin    AdminStore
	audit    AuditStore
	sessions SessionService
	ledger   LedgerService
	hub      *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, vehicles VehicleStore, tariffs TariffStore, records GateRecordStore, receipts ReceiptStore, admin AdminStore, audit AuditStore, sessions SessionService, ledger LedgerService, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner: txRunner,
		cfg:      cfg,
		users:    users,
		vehicles: vehicles,
		tariffs:  tariffs,
		records:  records,
		receipts: receipts,
		admin:    admin,
		audit:    audit,
		sessions: sessions,
		ledger:   ledger,
		hub:      hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/vehicles", h.RegisterVehicle)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/vehicles", h.ListVehicles)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/parking/start", h.StartParking)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/parking/stop", h.StopParking)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/parking/status/{plate}", h.ParkingStatus)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/balance", h.GetBalance)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/records", h.ListRecords)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/receipts", h.ListReceipts)
	router.Get("/ws/balances", h.WSBalances)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, store.RoleRecharge)).Post("/recharge", h.Recharge)
		r.With(middleware.RequireAdmin(h.admin, store.RoleRecharge)).Post("/balance/adjust", h.AdjustBalance)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageTariffs)).Post("/tariffs", h.CreateTariff)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageTariffs)).Get("/tariffs", h.ListTariffs)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageTariffs)).Post("/users/{id}/tariff", h.AssignTariff)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/users/{id}/deactivate", h.DeactivateUser)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewRecords)).Get("/users", h.AdminListUsers)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewRecords)).Get("/records", h.AdminListRecords)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewAudit)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
