package handlers

import (
	"context"

	"parking/internal/services"
	"parking/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, input store.UserInput) error
	GetByID(ctx context.Context, userID string) (store.UserRow, error)
	GetByDocument(ctx context.Context, documentID string) (store.UserRow, error)
	AssignTariff(ctx context.Context, tx store.Execer, userID string, tariffID *string) error
	Deactivate(ctx context.Context, tx store.Execer, userID string) error
	ListAll(ctx context.Context, limit, offset int) ([]store.UserRow, error)
}

type VehicleStore interface {
	Create(ctx context.Context, tx store.Execer, id, plate, userID string) error
	GetByPlate(ctx context.Context, plate string) (store.VehicleRow, error)
	ListByUser(ctx context.Context, userID string) ([]store.VehicleRow, error)
}

type TariffStore interface {
	Create(ctx context.Context, tx store.Execer, id, userClass, hourlyRate string) error
	GetByID(ctx context.Context, tariffID string) (store.TariffRow, error)
	GetActiveByClassForUpdate(ctx context.Context, tx store.Getter, userClass string) (store.TariffRow, error)
	Deactivate(ctx context.Context, tx store.Execer, tariffID string) (int64, error)
	List(ctx context.Context) ([]store.TariffRow, error)
}

type GateRecordStore interface {
	ListByDocument(ctx context.Context, document string, limit, offset int) ([]store.GateRecordRow, error)
	ListAll(ctx context.Context, recordType string, limit, offset int) ([]store.GateRecordRow, error)
}

type ReceiptStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]store.ReceiptRow, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, input store.AuditInput) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type SessionService interface {
	Start(ctx context.Context, req services.StartRequest) (services.StartResult, error)
	Stop(ctx context.Context, req services.StopRequest) (services.StopResult, error)
	Status(ctx context.Context, plate string) (services.StatusResult, error)
}

type LedgerService interface {
	Credit(ctx context.Context, req services.CreditRequest) (services.CreditResult, error)
	Adjust(ctx context.Context, req services.AdjustRequest) (int64, error)
}
