package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"parking/internal/db"
	"parking/internal/models"
	"parking/internal/money"
	"parking/internal/queue"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrVehicleNotFound  = errors.New("vehicle not found")
	ErrVehicleParked    = errors.New("vehicle already parked")
	ErrSessionNotFound  = errors.New("no active session")
	ErrSessionNotActive = errors.New("session is not active")
	ErrMissingGate      = errors.New("gate is required")
)

type VehicleStore interface {
	GetByPlate(ctx context.Context, plate string) (store.VehicleRow, error)
	GetForUpdate(ctx context.Context, tx store.Getter, plate string) (store.VehicleRow, error)
	SetParked(ctx context.Context, tx store.Execer, vehicleID string, parked bool, entryAt *time.Time) error
}

type SessionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.SessionInput) error
	FindActiveByPlate(ctx context.Context, plate string) (store.SessionRow, error)
	FindActiveForUpdate(ctx context.Context, tx store.Getter, plate string) (store.SessionRow, error)
	Finish(ctx context.Context, tx store.Execer, sessionID string, endedAt time.Time, realHours float64, billedHours, amount int64) (int64, error)
}

type GateRecordStore interface {
	Append(ctx context.Context, tx store.Execer, input store.GateRecordInput) error
	FindOpenIngressByPlate(ctx context.Context, tx store.Getter, plate string) (store.GateRecordRow, error)
	CloseIngress(ctx context.Context, tx store.Execer, recordID string) (int64, error)
}

type TariffResolver interface {
	Resolve(ctx context.Context, user store.UserRow) (decimal.Decimal, string)
}

type SettlementLedger interface {
	DebitTx(ctx context.Context, tx store.Tx, req DebitRequest) (int64, error)
}

type GatePublisher interface {
	Publish(ctx context.Context, event queue.GateEvent) error
}

// SessionService drives the parking session state machine: start a session
// at a gate, stop it with hourly billing against the user's balance, and
// reconcile the vehicle occupancy flag against session state.
type SessionService struct {
	txRunner  db.TxRunner
	users     UserStore
	vehicles  VehicleStore
	sessions  SessionStore
	records   GateRecordStore
	tariffs   TariffResolver
	ledger    SettlementLedger
	audit     AuditStore
	hub       BalanceHub
	publisher GatePublisher
}

func NewSessionService(txRunner db.TxRunner, users UserStore, vehicles VehicleStore, sessions SessionStore, records GateRecordStore, tariffs TariffResolver, ledger SettlementLedger, audit AuditStore, hub BalanceHub, publisher GatePublisher) *SessionService {
	return &SessionService{
		txRunner:  txRunner,
		users:     users,
		vehicles:  vehicles,
		sessions:  sessions,
		records:   records,
		tariffs:   tariffs,
		ledger:    ledger,
		audit:     audit,
		hub:       hub,
		publisher: publisher,
	}
}

type StartRequest struct {
	UserID string
	Plate  string
	Gate   string
	IP     string
}

type StartResult struct {
	Session store.SessionRow
	Ingress store.GateRecordRow
}

// Start opens a session. Nothing is charged at entry; the positive-balance
// check is only an admission gate against empty accounts, not a
// pre-authorization of the eventual stay.
func (s *SessionService) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if strings.TrimSpace(req.Gate) == "" {
		return StartResult{}, ErrMissingGate
	}
	var result StartResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.users.GetForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrUserNotFound
			}
			return err
		}
		if !user.Active {
			return ErrUserNotFound
		}
		if user.Balance <= 0 {
			return ErrInsufficientBalance
		}
		vehicle, err := s.vehicles.GetForUpdate(ctx, tx, req.Plate)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrVehicleNotFound
			}
			return err
		}
		if vehicle.IsParked {
			return ErrVehicleParked
		}
		// Flag says free, but double-check session state: a drifted flag
		// must not let a second active session in.
		if _, err := s.sessions.FindActiveForUpdate(ctx, tx, req.Plate); err == nil {
			return ErrVehicleParked
		} else if err != sql.ErrNoRows {
			return err
		}

		now := time.Now().UTC()
		if err := s.vehicles.SetParked(ctx, tx, vehicle.ID, true, &now); err != nil {
			return err
		}
		session := store.SessionRow{
			ID:        uuid.NewString(),
			Plate:     req.Plate,
			UserID:    user.ID,
			Gate:      req.Gate,
			StartedAt: now,
			Status:    models.SessionActive,
		}
		if err := s.sessions.Create(ctx, tx, store.SessionInput{
			ID:        session.ID,
			Plate:     session.Plate,
			UserID:    session.UserID,
			Gate:      session.Gate,
			StartedAt: session.StartedAt,
		}); err != nil {
			return err
		}
		rate, source := s.tariffs.Resolve(ctx, user)
		ingress := store.GateRecordRow{
			ID:           uuid.NewString(),
			Type:         models.RecordIngress,
			Status:       models.SessionActive,
			Plate:        req.Plate,
			Gate:         req.Gate,
			UserDocument: user.DocumentID,
			UserName:     user.Name,
			UserClass:    user.MembershipClass,
			HourlyRate:   rate.StringFixed(2),
			RateSource:   source,
			Amount:       0,
		}
		if err := s.records.Append(ctx, tx, recordInput(ingress)); err != nil {
			return err
		}
		s.logSessionAudit(ctx, tx, "session_start", session.ID, req.UserID, req.IP, map[string]string{
			"plate": req.Plate,
			"gate":  req.Gate,
		})
		result = StartResult{Session: session, Ingress: ingress}
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}
	s.publishGateEvent(ctx, result.Ingress, result.Session)
	return result, nil
}

type StopRequest struct {
	UserID string
	Plate  string
	IP     string
}

type StopResult struct {
	Session      store.SessionRow
	BalanceAfter int64
	Egress       store.GateRecordRow
	Ingress      *store.GateRecordRow
}

// Stop settles and closes the active session for a plate. The debit, the
// session finish, the vehicle flag and both journal rows commit in a single
// transaction, so a failure at any step leaves no partial state: either the
// stay is fully settled or it is still active.
func (s *SessionService) Stop(ctx context.Context, req StopRequest) (StopResult, error) {
	var result StopResult
	var stopErr error
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		stopErr = nil
		vehicle, err := s.vehicles.GetForUpdate(ctx, tx, req.Plate)
		if err != nil {
			if err == sql.ErrNoRows {
				stopErr = ErrVehicleNotFound
				return nil
			}
			return err
		}
		session, err := s.sessions.FindActiveForUpdate(ctx, tx, req.Plate)
		if err != nil {
			if err != sql.ErrNoRows {
				return err
			}
			// Flag drift: parked flag with no session. Clear it and commit
			// the fix even though the stop itself fails.
			if vehicle.IsParked {
				if err := s.vehicles.SetParked(ctx, tx, vehicle.ID, false, nil); err != nil {
					return err
				}
				log.Printf("reconciled drifted parked flag for plate %s", req.Plate)
			}
			stopErr = ErrSessionNotFound
			return nil
		}
		if strings.TrimSpace(session.Gate) == "" {
			return ErrMissingGate
		}
		user, err := s.users.GetForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrUserNotFound
			}
			return err
		}
		if !user.Active {
			return ErrUserNotFound
		}

		now := time.Now().UTC()
		realHours, billedHours := billingHours(session.StartedAt, now)
		// The tariff is resolved again at exit: a change made mid-stay
		// applies to the whole stay.
		rate, source := s.tariffs.Resolve(ctx, user)
		amount := money.RateTimesHours(rate, billedHours)
		// A zero amount is a free stay under a zero-rate tariff. The
		// session still finishes; there is just nothing to debit.
		balanceAfter := user.Balance
		if amount > 0 {
			if user.Balance < amount {
				return ErrInsufficientBalance
			}
			balanceAfter, err = s.ledger.DebitTx(ctx, tx, DebitRequest{
				UserID:      user.ID,
				AmountMinor: amount,
				ActorID:     req.UserID,
				Reason:      fmt.Sprintf("parking settlement %s", req.Plate),
				IP:          req.IP,
			})
			if err != nil {
				return err
			}
		}
		affected, err := s.sessions.Finish(ctx, tx, session.ID, now, realHours, billedHours, amount)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSessionNotActive
		}
		if err := s.vehicles.SetParked(ctx, tx, vehicle.ID, false, nil); err != nil {
			return err
		}

		var closedIngress *store.GateRecordRow
		ingress, err := s.records.FindOpenIngressByPlate(ctx, tx, req.Plate)
		if err == nil {
			if _, err := s.records.CloseIngress(ctx, tx, ingress.ID); err != nil {
				return err
			}
			ingress.Status = models.SessionFinished
			closedIngress = &ingress
		} else if err == sql.ErrNoRows {
			// Tolerated: the egress row below still records the settlement.
			log.Printf("no open ingress record for plate %s", req.Plate)
		} else {
			return err
		}

		egress := store.GateRecordRow{
			ID:           uuid.NewString(),
			Type:         models.RecordEgress,
			Status:       models.SessionFinished,
			Plate:        req.Plate,
			Gate:         session.Gate,
			UserDocument: user.DocumentID,
			UserName:     user.Name,
			UserClass:    user.MembershipClass,
			HourlyRate:   rate.StringFixed(2),
			RateSource:   source,
			Amount:       amount,
			RealHours:    realHours,
			BilledHours:  billedHours,
		}
		if err := s.records.Append(ctx, tx, recordInput(egress)); err != nil {
			return err
		}
		s.logSessionAudit(ctx, tx, "session_stop", session.ID, req.UserID, req.IP, map[string]string{
			"plate":        req.Plate,
			"amount":       money.FormatMinor(amount),
			"billed_hours": fmt.Sprintf("%d", billedHours),
		})

		ended := now
		session.EndedAt = &ended
		session.RealHours = realHours
		session.BilledHours = billedHours
		session.Amount = amount
		session.Status = models.SessionFinished
		result = StopResult{
			Session:      session,
			BalanceAfter: balanceAfter,
			Egress:       egress,
			Ingress:      closedIngress,
		}
		return nil
	})
	if err != nil {
		return StopResult{}, err
	}
	if stopErr != nil {
		return StopResult{}, stopErr
	}
	s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
		UserID:  req.UserID,
		Balance: money.FormatMinor(result.BalanceAfter),
	})
	s.publishGateEvent(ctx, result.Egress, result.Session)
	return result, nil
}

type StatusResult struct {
	Vehicle store.VehicleRow
	Session *store.SessionRow
}

// Status reports the vehicle and its active session, fixing flag drift as a
// side effect before reading.
func (s *SessionService) Status(ctx context.Context, plate string) (StatusResult, error) {
	if err := s.Reconcile(ctx, plate); err != nil {
		if err == ErrVehicleNotFound {
			return StatusResult{}, err
		}
		log.Printf("reconcile failed for plate %s: %v", plate, err)
	}
	vehicle, err := s.vehicles.GetByPlate(ctx, plate)
	if err != nil {
		if err == sql.ErrNoRows {
			return StatusResult{}, ErrVehicleNotFound
		}
		return StatusResult{}, err
	}
	session, err := s.sessions.FindActiveByPlate(ctx, plate)
	if err != nil {
		if err == sql.ErrNoRows {
			return StatusResult{Vehicle: vehicle}, nil
		}
		return StatusResult{}, err
	}
	return StatusResult{Vehicle: vehicle, Session: &session}, nil
}

// Reconcile realigns the vehicle occupancy flag with session state in both
// directions. It is idempotent and silent: drift is recoverable operator
// data, not a user-facing failure.
func (s *SessionService) Reconcile(ctx context.Context, plate string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		vehicle, err := s.vehicles.GetForUpdate(ctx, tx, plate)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrVehicleNotFound
			}
			return err
		}
		session, err := s.sessions.FindActiveForUpdate(ctx, tx, plate)
		if err != nil {
			if err != sql.ErrNoRows {
				return err
			}
			if vehicle.IsParked {
				log.Printf("reconciled drifted parked flag for plate %s", plate)
				return s.vehicles.SetParked(ctx, tx, vehicle.ID, false, nil)
			}
			return nil
		}
		if !vehicle.IsParked {
			log.Printf("reconciled missing parked flag for plate %s", plate)
			entry := session.StartedAt
			return s.vehicles.SetParked(ctx, tx, vehicle.ID, true, &entry)
		}
		return nil
	})
}

// billingHours converts an elapsed stay into real and billed hours. Billing
// always rounds up to the next whole hour: any fraction over N hours bills
// as N+1.
func billingHours(startedAt, endedAt time.Time) (float64, int64) {
	elapsed := endedAt.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	realHours := elapsed.Seconds() / 3600
	return realHours, int64(math.Ceil(realHours))
}

func recordInput(row store.GateRecordRow) store.GateRecordInput {
	return store.GateRecordInput{
		ID:           row.ID,
		Type:         row.Type,
		Status:       row.Status,
		Plate:        row.Plate,
		Gate:         row.Gate,
		UserDocument: row.UserDocument,
		UserName:     row.UserName,
		UserClass:    row.UserClass,
		HourlyRate:   row.HourlyRate,
		RateSource:   row.RateSource,
		Amount:       row.Amount,
		RealHours:    row.RealHours,
		BilledHours:  row.BilledHours,
	}
}

func (s *SessionService) logSessionAudit(ctx context.Context, tx store.Execer, action, sessionID, actorID, ip string, after map[string]string) {
	afterData, _ := json.Marshal(after)
	err := s.audit.Log(ctx, tx, store.AuditInput{
		ActorUserID: actorID,
		Action:      action,
		EntityType:  "session",
		EntityID:    sessionID,
		Before:      "{}",
		After:       string(afterData),
		IP:          ip,
	})
	if err != nil {
		log.Printf("audit write failed for %s on session %s: %v", action, sessionID, err)
	}
}

// Gate events are for downstream displays and analytics; a broker outage
// must not fail the parking operation.
func (s *SessionService) publishGateEvent(ctx context.Context, record store.GateRecordRow, session store.SessionRow) {
	event := queue.GateEvent{
		Type:        record.Type,
		Plate:       record.Plate,
		Gate:        record.Gate,
		SessionID:   session.ID,
		Amount:      money.FormatMinor(record.Amount),
		BilledHours: record.BilledHours,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("gate event publish failed for plate %s: %v", record.Plate, err)
	}
}
