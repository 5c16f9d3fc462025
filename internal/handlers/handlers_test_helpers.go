package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parking/internal/auth"
	"parking/internal/config"
	"parking/internal/middleware"
	"parking/internal/services"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, input store.UserInput) error
	getByIDFn       func(ctx context.Context, userID string) (store.UserRow, error)
	getByDocumentFn func(ctx context.Context, documentID string) (store.UserRow, error)
	assignTariffFn  func(ctx context.Context, tx store.Execer, userID string, tariffID *string) error
	deactivateFn    func(ctx context.Context, tx store.Execer, userID string) error
	listAllFn       func(ctx context.Context, limit, offset int) ([]store.UserRow, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, input store.UserInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.UserRow, error) {
	if s.getByIDFn == nil {
		return store.UserRow{}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) GetByDocument(ctx context.Context, documentID string) (store.UserRow, error) {
	if s.getByDocumentFn == nil {
		return store.UserRow{}, nil
	}
	return s.getByDocumentFn(ctx, documentID)
}

func (s stubUserStore) AssignTariff(ctx context.Context, tx store.Execer, userID string, tariffID *string) error {
	if s.assignTariffFn == nil {
		return nil
	}
	return s.assignTariffFn(ctx, tx, userID, tariffID)
}

func (s stubUserStore) Deactivate(ctx context.Context, tx store.Execer, userID string) error {
	if s.deactivateFn == nil {
		return nil
	}
	return s.deactivateFn(ctx, tx, userID)
}

func (s stubUserStore) ListAll(ctx context.Context, limit, offset int) ([]store.UserRow, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

type stubVehicleStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, plate, userID string) error
	getByPlateFn func(ctx context.Context, plate string) (store.VehicleRow, error)
	listByUserFn func(ctx context.Context, userID string) ([]store.VehicleRow, error)
}

func (s stubVehicleStore) Create(ctx context.Context, tx store.Execer, id, plate, userID string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, plate, userID)
}

func (s stubVehicleStore) GetByPlate(ctx context.Context, plate string) (store.VehicleRow, error) {
	if s.getByPlateFn == nil {
		return store.VehicleRow{}, nil
	}
	return s.getByPlateFn(ctx, plate)
}

func (s stubVehicleStore) ListByUser(ctx context.Context, userID string) ([]store.VehicleRow, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

type stubTariffStore struct {
	createFn                    func(ctx context.Context, tx store.Execer, id, userClass, hourlyRate string) error
	getByIDFn                   func(ctx context.Context, tariffID string) (store.TariffRow, error)
	getActiveByClassForUpdateFn func(ctx context.Context, tx store.Getter, userClass string) (store.TariffRow, error)
	deactivateFn                func(ctx context.Context, tx store.Execer, tariffID string) (int64, error)
	listFn                      func(ctx context.Context) ([]store.TariffRow, error)
}

func (s stubTariffStore) Create(ctx context.Context, tx store.Execer, id, userClass, hourlyRate string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, userClass, hourlyRate)
}

func (s stubTariffStore) GetByID(ctx context.Context, tariffID string) (store.TariffRow, error) {
	if s.getByIDFn == nil {
		return store.TariffRow{}, nil
	}
	return s.getByIDFn(ctx, tariffID)
}

func (s stubTariffStore) GetActiveByClassForUpdate(ctx context.Context, tx store.Getter, userClass string) (store.TariffRow, error) {
	if s.getActiveByClassForUpdateFn == nil {
		return store.TariffRow{}, nil
	}
	return s.getActiveByClassForUpdateFn(ctx, tx, userClass)
}

func (s stubTariffStore) Deactivate(ctx context.Context, tx store.Execer, tariffID string) (int64, error) {
	if s.deactivateFn == nil {
		return 1, nil
	}
	return s.deactivateFn(ctx, tx, tariffID)
}

func (s stubTariffStore) List(ctx context.Context) ([]store.TariffRow, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

type stubGateRecordStore struct {
	listByDocumentFn func(ctx context.Context, document string, limit, offset int) ([]store.GateRecordRow, error)
	listAllFn        func(ctx context.Context, recordType string, limit, offset int) ([]store.GateRecordRow, error)
}

func (s stubGateRecordStore) ListByDocument(ctx context.Context, document string, limit, offset int) ([]store.GateRecordRow, error) {
	if s.listByDocumentFn == nil {
		return nil, nil
	}
	return s.listByDocumentFn(ctx, document, limit, offset)
}

func (s stubGateRecordStore) ListAll(ctx context.Context, recordType string, limit, offset int) ([]store.GateRecordRow, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, recordType, limit, offset)
}

type stubReceiptStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]store.ReceiptRow, error)
}

func (s stubReceiptStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]store.ReceiptRow, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return false, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, input store.AuditInput) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, input store.AuditInput) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, input)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubSessionService struct {
	startFn  func(ctx context.Context, req services.StartRequest) (services.StartResult, error)
	stopFn   func(ctx context.Context, req services.StopRequest) (services.StopResult, error)
	statusFn func(ctx context.Context, plate string) (services.StatusResult, error)
}

func (s stubSessionService) Start(ctx context.Context, req services.StartRequest) (services.StartResult, error) {
	if s.startFn == nil {
		return services.StartResult{}, nil
	}
	return s.startFn(ctx, req)
}

func (s stubSessionService) Stop(ctx context.Context, req services.StopRequest) (services.StopResult, error) {
	if s.stopFn == nil {
		return services.StopResult{}, nil
	}
	return s.stopFn(ctx, req)
}

func (s stubSessionService) Status(ctx context.Context, plate string) (services.StatusResult, error) {
	if s.statusFn == nil {
		return services.StatusResult{}, nil
	}
	return s.statusFn(ctx, plate)
}

type stubLedgerService struct {
	creditFn func(ctx context.Context, req services.CreditRequest) (services.CreditResult, error)
	adjustFn func(ctx context.Context, req services.AdjustRequest) (int64, error)
}

func (s stubLedgerService) Credit(ctx context.Context, req services.CreditRequest) (services.CreditResult, error) {
	if s.creditFn == nil {
		return services.CreditResult{}, nil
	}
	return s.creditFn(ctx, req)
}

func (s stubLedgerService) Adjust(ctx context.Context, req services.AdjustRequest) (int64, error) {
	if s.adjustFn == nil {
		return 0, nil
	}
	return s.adjustFn(ctx, req)
}

func newTestHandler(txRunner fakeTxRunner, users UserStore, vehicles VehicleStore, tariffs TariffStore, records GateRecordStore, receipts ReceiptStore, admin AdminStore, audit AuditStore, sessions SessionService, ledger LedgerService) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	return New(txRunner, cfg, users, vehicles, tariffs, records, receipts, admin, audit, sessions, ledger, websocket.NewHub())
}

func serveAuthed(t *testing.T, handler http.HandlerFunc, userID, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	middleware.Auth("secret")(handler).ServeHTTP(rr, req)
	return rr
}
