package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"parking/internal/queue"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubUserStore struct {
	getByIDFn       func(ctx context.Context, userID string) (store.UserRow, error)
	getForUpdateFn  func(ctx context.Context, tx store.Getter, userID string) (store.UserRow, error)
	updateBalanceFn func(ctx context.Context, tx store.Execer, userID string, balance int64) error
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.UserRow, error) {
	if s.getByIDFn == nil {
		return store.UserRow{}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.UserRow, error) {
	return s.getForUpdateFn(ctx, tx, userID)
}

func (s stubUserStore) UpdateBalance(ctx context.Context, tx store.Execer, userID string, balance int64) error {
	if s.updateBalanceFn == nil {
		return nil
	}
	return s.updateBalanceFn(ctx, tx, userID, balance)
}

type stubVehicleStore struct {
	getByPlateFn   func(ctx context.Context, plate string) (store.VehicleRow, error)
	getForUpdateFn func(ctx context.Context, tx store.Getter, plate string) (store.VehicleRow, error)
	setParkedFn    func(ctx context.Context, tx store.Execer, vehicleID string, parked bool, entryAt *time.Time) error
}

func (s stubVehicleStore) GetByPlate(ctx context.Context, plate string) (store.VehicleRow, error) {
	if s.getByPlateFn == nil {
		return store.VehicleRow{}, nil
	}
	return s.getByPlateFn(ctx, plate)
}

func (s stubVehicleStore) GetForUpdate(ctx context.Context, tx store.Getter, plate string) (store.VehicleRow, error) {
	return s.getForUpdateFn(ctx, tx, plate)
}

func (s stubVehicleStore) SetParked(ctx context.Context, tx store.Execer, vehicleID string, parked bool, entryAt *time.Time) error {
	if s.setParkedFn == nil {
		return nil
	}
	return s.setParkedFn(ctx, tx, vehicleID, parked, entryAt)
}

type stubSessionStore struct {
	createFn              func(ctx context.Context, tx store.Execer, input store.SessionInput) error
	findActiveByPlateFn   func(ctx context.Context, plate string) (store.SessionRow, error)
	findActiveForUpdateFn func(ctx context.Context, tx store.Getter, plate string) (store.SessionRow, error)
	finishFn              func(ctx context.Context, tx store.Execer, sessionID string, endedAt time.Time, realHours float64, billedHours, amount int64) (int64, error)
}

func (s stubSessionStore) Create(ctx context.Context, tx store.Execer, input store.SessionInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubSessionStore) FindActiveByPlate(ctx context.Context, plate string) (store.SessionRow, error) {
	if s.findActiveByPlateFn == nil {
		return store.SessionRow{}, sql.ErrNoRows
	}
	return s.findActiveByPlateFn(ctx, plate)
}

func (s stubSessionStore) FindActiveForUpdate(ctx context.Context, tx store.Getter, plate string) (store.SessionRow, error) {
	if s.findActiveForUpdateFn == nil {
		return store.SessionRow{}, sql.ErrNoRows
	}
	return s.findActiveForUpdateFn(ctx, tx, plate)
}

func (s stubSessionStore) Finish(ctx context.Context, tx store.Execer, sessionID string, endedAt time.Time, realHours float64, billedHours, amount int64) (int64, error) {
	if s.finishFn == nil {
		return 1, nil
	}
	return s.finishFn(ctx, tx, sessionID, endedAt, realHours, billedHours, amount)
}

type stubGateRecordStore struct {
	appendFn          func(ctx context.Context, tx store.Execer, input store.GateRecordInput) error
	findOpenIngressFn func(ctx context.Context, tx store.Getter, plate string) (store.GateRecordRow, error)
	closeIngressFn    func(ctx context.Context, tx store.Execer, recordID string) (int64, error)
}

func (s stubGateRecordStore) Append(ctx context.Context, tx store.Execer, input store.GateRecordInput) error {
	if s.appendFn == nil {
		return nil
	}
	return s.appendFn(ctx, tx, input)
}

func (s stubGateRecordStore) FindOpenIngressByPlate(ctx context.Context, tx store.Getter, plate string) (store.GateRecordRow, error) {
	if s.findOpenIngressFn == nil {
		return store.GateRecordRow{}, sql.ErrNoRows
	}
	return s.findOpenIngressFn(ctx, tx, plate)
}

func (s stubGateRecordStore) CloseIngress(ctx context.Context, tx store.Execer, recordID string) (int64, error) {
	if s.closeIngressFn == nil {
		return 1, nil
	}
	return s.closeIngressFn(ctx, tx, recordID)
}

type stubResolver struct {
	rate   decimal.Decimal
	source string
}

func (s stubResolver) Resolve(_ context.Context, _ store.UserRow) (decimal.Decimal, string) {
	return s.rate, s.source
}

type stubSettlementLedger struct {
	debitFn func(ctx context.Context, tx store.Tx, req DebitRequest) (int64, error)
}

func (s stubSettlementLedger) DebitTx(ctx context.Context, tx store.Tx, req DebitRequest) (int64, error) {
	if s.debitFn == nil {
		return 0, nil
	}
	return s.debitFn(ctx, tx, req)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, input store.AuditInput) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, input store.AuditInput) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, input)
}

type stubHub struct {
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.calls = append(s.calls, update)
}

type stubPublisher struct {
	events []queue.GateEvent
}

func (s *stubPublisher) Publish(_ context.Context, event queue.GateEvent) error {
	s.events = append(s.events, event)
	return nil
}

func mustRate(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("bad rate %q: %v", raw, err)
	}
	return rate
}

func newSessionService(users UserStore, vehicles VehicleStore, sessions SessionStore, records GateRecordStore, resolver TariffResolver, ledger SettlementLedger, hub BalanceHub, publisher GatePublisher) *SessionService {
	return NewSessionService(fakeTxRunner{}, users, vehicles, sessions, records, resolver, ledger, stubAuditStore{}, hub, publisher)
}

func TestStartMissingGate(t *testing.T) {
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			t.Fatalf("unexpected store call")
			return store.UserRow{}, nil
		},
	}, stubVehicleStore{}, stubSessionStore{}, stubGateRecordStore{}, stubResolver{}, stubSettlementLedger{}, &stubHub{}, &stubPublisher{})
	_, err := service.Start(context.Background(), StartRequest{UserID: "user-1", Plate: "ABC123", Gate: "  "})
	if err != ErrMissingGate {
		t.Fatalf("expected ErrMissingGate, got %v", err)
	}
}

func TestStartEmptyBalanceRejected(t *testing.T) {
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			return store.UserRow{ID: "user-1", Active: true, Balance: 0}, nil
		},
	}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			t.Fatalf("balance gate must run before the vehicle lock")
			return store.VehicleRow{}, nil
		},
	}, stubSessionStore{}, stubGateRecordStore{}, stubResolver{}, stubSettlementLedger{}, &stubHub{}, &stubPublisher{})
	_, err := service.Start(context.Background(), StartRequest{UserID: "user-1", Plate: "ABC123", Gate: "north"})
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestStartVehicleAlreadyParked(t *testing.T) {
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			return store.UserRow{ID: "user-1", Active: true, Balance: 10000}, nil
		},
	}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: true}, nil
		},
	}, stubSessionStore{}, stubGateRecordStore{}, stubResolver{}, stubSettlementLedger{}, &stubHub{}, &stubPublisher{})
	_, err := service.Start(context.Background(), StartRequest{UserID: "user-1", Plate: "ABC123", Gate: "north"})
	if err != ErrVehicleParked {
		t.Fatalf("expected ErrVehicleParked, got %v", err)
	}
}

func TestStartRejectsDriftedActiveSession(t *testing.T) {
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			return store.UserRow{ID: "user-1", Active: true, Balance: 10000}, nil
		},
	}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: false}, nil
		},
	}, stubSessionStore{
		findActiveForUpdateFn: func(context.Context, store.Getter, string) (store.SessionRow, error) {
			return store.SessionRow{ID: "sess-0", Status: "active"}, nil
		},
	}, stubGateRecordStore{}, stubResolver{}, stubSettlementLedger{}, &stubHub{}, &stubPublisher{})
	_, err := service.Start(context.Background(), StartRequest{UserID: "user-1", Plate: "ABC123", Gate: "north"})
	if err != ErrVehicleParked {
		t.Fatalf("expected ErrVehicleParked, got %v", err)
	}
}

func TestStartOpensSessionAndJournalsIngress(t *testing.T) {
	var created store.SessionInput
	var appended store.GateRecordInput
	var parkedAt *time.Time
	publisher := &stubPublisher{}
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			return store.UserRow{ID: "user-1", DocumentID: "12345678", Name: "Ana", MembershipClass: "associated", Active: true, Balance: 10000}, nil
		},
	}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123"}, nil
		},
		setParkedFn: func(_ context.Context, _ store.Execer, vehicleID string, parked bool, entryAt *time.Time) error {
			if vehicleID != "veh-1" || !parked {
				t.Fatalf("unexpected flag update: %s %v", vehicleID, parked)
			}
			parkedAt = entryAt
			return nil
		},
	}, stubSessionStore{
		createFn: func(_ context.Context, _ store.Execer, input store.SessionInput) error {
			created = input
			return nil
		},
	}, stubGateRecordStore{
		appendFn: func(_ context.Context, _ store.Execer, input store.GateRecordInput) error {
			appended = input
			return nil
		},
	}, stubResolver{rate: mustRate(t, "250.00"), source: RateSourceClass}, stubSettlementLedger{}, &stubHub{}, publisher)

	result, err := service.Start(context.Background(), StartRequest{UserID: "user-1", Plate: "ABC123", Gate: "north"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Plate != "ABC123" || created.Gate != "north" || created.UserID != "user-1" {
		t.Fatalf("unexpected session input: %#v", created)
	}
	if parkedAt == nil || !parkedAt.Equal(created.StartedAt) {
		t.Fatalf("entry timestamp must match session start: %v vs %v", parkedAt, created.StartedAt)
	}
	if appended.Type != "ingress" || appended.Status != "active" || appended.Amount != 0 {
		t.Fatalf("unexpected ingress record: %#v", appended)
	}
	if appended.HourlyRate != "250.00" || appended.RateSource != RateSourceClass {
		t.Fatalf("ingress must snapshot the resolved tariff: %#v", appended)
	}
	if appended.UserDocument != "12345678" || appended.UserName != "Ana" {
		t.Fatalf("ingress must snapshot the user: %#v", appended)
	}
	if result.Session.Status != "active" {
		t.Fatalf("unexpected result session: %#v", result.Session)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "ingress" {
		t.Fatalf("expected one ingress event, got %#v", publisher.events)
	}
}

func TestStopWithoutSessionClearsDriftedFlag(t *testing.T) {
	cleared := false
	service := newSessionService(stubUserStore{}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: true}, nil
		},
		setParkedFn: func(_ context.Context, _ store.Execer, vehicleID string, parked bool, entryAt *time.Time) error {
			if parked || entryAt != nil {
				t.Fatalf("expected the flag to be cleared")
			}
			cleared = true
			return nil
		},
	}, stubSessionStore{}, stubGateRecordStore{}, stubResolver{}, stubSettlementLedger{}, &stubHub{}, &stubPublisher{})
	_, err := service.Stop(context.Background(), StopRequest{UserID: "user-1", Plate: "ABC123"})
	if err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if !cleared {
		t.Fatalf("drifted flag was not reconciled")
	}
}

func TestStopInsufficientBalanceLeavesSessionActive(t *testing.T) {
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			return store.UserRow{ID: "user-1", MembershipClass: "associated", Active: true, Balance: 100}, nil
		},
	}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: true}, nil
		},
		setParkedFn: func(context.Context, store.Execer, string, bool, *time.Time) error {
			t.Fatalf("flag must not change on failed settlement")
			return nil
		},
	}, stubSessionStore{
		findActiveForUpdateFn: func(context.Context, store.Getter, string) (store.SessionRow, error) {
			return store.SessionRow{ID: "sess-1", Plate: "ABC123", Gate: "north", StartedAt: time.Now().UTC().Add(-30 * time.Minute), Status: "active"}, nil
		},
		finishFn: func(context.Context, store.Execer, string, time.Time, float64, int64, int64) (int64, error) {
			t.Fatalf("session must stay active")
			return 0, nil
		},
	}, stubGateRecordStore{}, stubResolver{rate: mustRate(t, "250.00"), source: RateSourceClass}, stubSettlementLedger{}, &stubHub{}, &stubPublisher{})
	_, err := service.Stop(context.Background(), StopRequest{UserID: "user-1", Plate: "ABC123"})
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestStopSettlesWithCeilBilling(t *testing.T) {
	var debited DebitRequest
	var finishedHours int64
	var finishedAmount int64
	var egress store.GateRecordInput
	closedIngress := ""
	hub := &stubHub{}
	publisher := &stubPublisher{}
	started := time.Now().UTC().Add(-61 * time.Minute)
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			return store.UserRow{ID: "user-1", DocumentID: "12345678", Name: "Ana", MembershipClass: "associated", Active: true, Balance: 100000}, nil
		},
	}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: true}, nil
		},
		setParkedFn: func(_ context.Context, _ store.Execer, _ string, parked bool, _ *time.Time) error {
			if parked {
				t.Fatalf("expected the flag to be cleared")
			}
			return nil
		},
	}, stubSessionStore{
		findActiveForUpdateFn: func(context.Context, store.Getter, string) (store.SessionRow, error) {
			return store.SessionRow{ID: "sess-1", Plate: "ABC123", UserID: "user-1", Gate: "north", StartedAt: started, Status: "active"}, nil
		},
		finishFn: func(_ context.Context, _ store.Execer, sessionID string, _ time.Time, _ float64, billedHours, amount int64) (int64, error) {
			if sessionID != "sess-1" {
				t.Fatalf("unexpected session: %s", sessionID)
			}
			finishedHours = billedHours
			finishedAmount = amount
			return 1, nil
		},
	}, stubGateRecordStore{
		findOpenIngressFn: func(context.Context, store.Getter, string) (store.GateRecordRow, error) {
			return store.GateRecordRow{ID: "rec-1", Type: "ingress", Status: "active"}, nil
		},
		closeIngressFn: func(_ context.Context, _ store.Execer, recordID string) (int64, error) {
			closedIngress = recordID
			return 1, nil
		},
		appendFn: func(_ context.Context, _ store.Execer, input store.GateRecordInput) error {
			egress = input
			return nil
		},
	}, stubResolver{rate: mustRate(t, "250.00"), source: RateSourceClass}, stubSettlementLedger{
		debitFn: func(_ context.Context, _ store.Tx, req DebitRequest) (int64, error) {
			debited = req
			return 100000 - req.AmountMinor, nil
		},
	}, hub, publisher)

	result, err := service.Stop(context.Background(), StopRequest{UserID: "user-1", Plate: "ABC123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 61 minutes at 250.00/hour bills as 2 hours.
	if finishedHours != 2 || finishedAmount != 50000 {
		t.Fatalf("expected 2 hours / 50000 minor, got %d / %d", finishedHours, finishedAmount)
	}
	if debited.AmountMinor != 50000 || debited.UserID != "user-1" {
		t.Fatalf("unexpected debit: %#v", debited)
	}
	if closedIngress != "rec-1" {
		t.Fatalf("open ingress was not closed: %q", closedIngress)
	}
	if egress.Type != "egress" || egress.Status != "finished" || egress.Amount != 50000 || egress.BilledHours != 2 {
		t.Fatalf("unexpected egress record: %#v", egress)
	}
	if result.BalanceAfter != 50000 {
		t.Fatalf("unexpected balance: %d", result.BalanceAfter)
	}
	if result.Ingress == nil || result.Ingress.ID != "rec-1" || result.Ingress.Status != "finished" {
		t.Fatalf("unexpected closed ingress: %#v", result.Ingress)
	}
	if result.Session.Status != "finished" || result.Session.EndedAt == nil {
		t.Fatalf("unexpected result session: %#v", result.Session)
	}
	if len(hub.calls) != 1 || hub.calls[0].Balance != "500.00" {
		t.Fatalf("unexpected balance broadcast: %#v", hub.calls)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "egress" {
		t.Fatalf("expected one egress event, got %#v", publisher.events)
	}
}

func TestStopToleratesMissingIngressRecord(t *testing.T) {
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			return store.UserRow{ID: "user-1", MembershipClass: "associated", Active: true, Balance: 100000}, nil
		},
	}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: true}, nil
		},
	}, stubSessionStore{
		findActiveForUpdateFn: func(context.Context, store.Getter, string) (store.SessionRow, error) {
			return store.SessionRow{ID: "sess-1", Plate: "ABC123", Gate: "north", StartedAt: time.Now().UTC().Add(-10 * time.Minute), Status: "active"}, nil
		},
	}, stubGateRecordStore{}, stubResolver{rate: mustRate(t, "250.00"), source: RateSourceClass}, stubSettlementLedger{
		debitFn: func(_ context.Context, _ store.Tx, req DebitRequest) (int64, error) {
			return 100000 - req.AmountMinor, nil
		},
	}, &stubHub{}, &stubPublisher{})

	result, err := service.Stop(context.Background(), StopRequest{UserID: "user-1", Plate: "ABC123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ingress != nil {
		t.Fatalf("expected no ingress record, got %#v", result.Ingress)
	}
}

func TestStopFreeStayUnderZeroRateTariff(t *testing.T) {
	var finishedAmount int64
	var egress store.GateRecordInput
	cleared := false
	hub := &stubHub{}
	service := newSessionService(stubUserStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.UserRow, error) {
			return store.UserRow{ID: "user-1", MembershipClass: "associated", Active: true, Balance: 0}, nil
		},
	}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: true}, nil
		},
		setParkedFn: func(_ context.Context, _ store.Execer, _ string, parked bool, _ *time.Time) error {
			if parked {
				t.Fatalf("expected the flag to be cleared")
			}
			cleared = true
			return nil
		},
	}, stubSessionStore{
		findActiveForUpdateFn: func(context.Context, store.Getter, string) (store.SessionRow, error) {
			return store.SessionRow{ID: "sess-1", Plate: "ABC123", UserID: "user-1", Gate: "north", StartedAt: time.Now().UTC().Add(-90 * time.Minute), Status: "active"}, nil
		},
		finishFn: func(_ context.Context, _ store.Execer, _ string, _ time.Time, _ float64, _, amount int64) (int64, error) {
			finishedAmount = amount
			return 1, nil
		},
	}, stubGateRecordStore{
		appendFn: func(_ context.Context, _ store.Execer, input store.GateRecordInput) error {
			egress = input
			return nil
		},
	}, stubResolver{rate: mustRate(t, "0.00"), source: RateSourceClass}, stubSettlementLedger{
		debitFn: func(context.Context, store.Tx, DebitRequest) (int64, error) {
			t.Fatalf("nothing to debit on a zero-rate stay")
			return 0, nil
		},
	}, hub, &stubPublisher{})

	result, err := service.Stop(context.Background(), StopRequest{UserID: "user-1", Plate: "ABC123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if finishedAmount != 0 {
		t.Fatalf("expected a zero settlement, got %d", finishedAmount)
	}
	if !cleared {
		t.Fatalf("vehicle flag was not cleared")
	}
	if egress.Type != "egress" || egress.Amount != 0 {
		t.Fatalf("unexpected egress record: %#v", egress)
	}
	if result.BalanceAfter != 0 || result.Session.Status != "finished" {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(hub.calls) != 1 || hub.calls[0].Balance != "0.00" {
		t.Fatalf("unexpected balance broadcast: %#v", hub.calls)
	}
}

func TestReconcileClearsFlagWithoutSession(t *testing.T) {
	cleared := false
	service := newSessionService(stubUserStore{}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: true}, nil
		},
		setParkedFn: func(_ context.Context, _ store.Execer, _ string, parked bool, _ *time.Time) error {
			if parked {
				t.Fatalf("expected the flag to be cleared")
			}
			cleared = true
			return nil
		},
	}, stubSessionStore{}, stubGateRecordStore{}, stubResolver{}, stubSettlementLedger{}, &stubHub{}, &stubPublisher{})
	if err := service.Reconcile(context.Background(), "ABC123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cleared {
		t.Fatalf("flag was not cleared")
	}
}

func TestReconcileRestoresFlagWithActiveSession(t *testing.T) {
	started := time.Now().UTC().Add(-5 * time.Minute)
	restored := false
	service := newSessionService(stubUserStore{}, stubVehicleStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.VehicleRow, error) {
			return store.VehicleRow{ID: "veh-1", Plate: "ABC123", IsParked: false}, nil
		},
		setParkedFn: func(_ context.Context, _ store.Execer, _ string, parked bool, entryAt *time.Time) error {
			if !parked || entryAt == nil || !entryAt.Equal(started) {
				t.Fatalf("expected flag restore with session start, got %v %v", parked, entryAt)
			}
			restored = true
			return nil
		},
	}, stubSessionStore{
		findActiveForUpdateFn: func(context.Context, store.Getter, string) (store.SessionRow, error) {
			return store.SessionRow{ID: "sess-1", StartedAt: started, Status: "active"}, nil
		},
	}, stubGateRecordStore{}, stubResolver{}, stubSettlementLedger{}, &stubHub{}, &stubPublisher{})
	if err := service.Reconcile(context.Background(), "ABC123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !restored {
		t.Fatalf("flag was not restored")
	}
}

func TestBillingHours(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		elapsed time.Duration
		billed  int64
	}{
		{"zero", 0, 0},
		{"one minute", time.Minute, 1},
		{"exact hour", time.Hour, 1},
		{"hour and a second", time.Hour + time.Second, 2},
		{"two exact hours", 2 * time.Hour, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			real, billed := billingHours(base, base.Add(tc.elapsed))
			if billed != tc.billed {
				t.Fatalf("expected %d billed hours, got %d (real %f)", tc.billed, billed, real)
			}
		})
	}
}

func TestBillingHoursClampsNegative(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	real, billed := billingHours(base, base.Add(-time.Minute))
	if real != 0 || billed != 0 {
		t.Fatalf("expected zero, got %f / %d", real, billed)
	}
}
