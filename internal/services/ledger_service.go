package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"parking/internal/db"
	"parking/internal/money"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMissingReason       = errors.New("reason is required")
)

type UserStore interface {
	GetByID(ctx context.Context, userID string) (store.UserRow, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.UserRow, error)
	UpdateBalance(ctx context.Context, tx store.Execer, userID string, balance int64) error
}

type ReceiptStore interface {
	NextReceiptNumber(ctx context.Context, tx store.Tx) (int64, error)
	Create(ctx context.Context, tx store.Execer, input store.ReceiptInput) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, input store.AuditInput) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

// LedgerService owns every mutation of a user's balance. Both operations
// row-lock the user inside a serializable transaction, so concurrent
// mutations on the same user are applied one at a time and the balance
// never goes below zero.
type LedgerService struct {
	txRunner db.TxRunner
	users    UserStore
	receipts ReceiptStore
	audit    AuditStore
	hub      BalanceHub
}

func NewLedgerService(txRunner db.TxRunner, users UserStore, receipts ReceiptStore, audit AuditStore, hub BalanceHub) *LedgerService {
	return &LedgerService{
		txRunner: txRunner,
		users:    users,
		receipts: receipts,
		audit:    audit,
		hub:      hub,
	}
}

type CreditRequest struct {
	UserID      string
	AmountMinor int64
	ActorID     string
	Reason      string
	IP          string
}

type CreditResult struct {
	BalanceAfter  int64
	ReceiptID     string
	ReceiptNumber int64
}

// Credit tops up a balance and issues the numbered receipt the tax report
// is built from. Reason is mandatory: top-ups are always administrative.
func (s *LedgerService) Credit(ctx context.Context, req CreditRequest) (CreditResult, error) {
	if req.AmountMinor <= 0 {
		return CreditResult{}, ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reason) == "" {
		return CreditResult{}, ErrMissingReason
	}
	var result CreditResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.users.GetForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrUserNotFound
			}
			return err
		}
		newBalance := user.Balance + req.AmountMinor
		if err := s.users.UpdateBalance(ctx, tx, user.ID, newBalance); err != nil {
			return err
		}
		number, err := s.receipts.NextReceiptNumber(ctx, tx)
		if err != nil {
			return err
		}
		receiptID := uuid.NewString()
		if err := s.receipts.Create(ctx, tx, store.ReceiptInput{
			ID:           receiptID,
			Number:       number,
			UserID:       user.ID,
			UserDocument: user.DocumentID,
			UserName:     user.Name,
			Amount:       req.AmountMinor,
		}); err != nil {
			return err
		}
		result = CreditResult{
			BalanceAfter:  newBalance,
			ReceiptID:     receiptID,
			ReceiptNumber: number,
		}
		s.logBalanceAudit(ctx, tx, "balance_credit", user.ID, req.ActorID, user.Balance, newBalance, req.Reason, req.IP)
		return nil
	})
	if err != nil {
		return CreditResult{}, err
	}
	s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
		UserID:  req.UserID,
		Balance: money.FormatMinor(result.BalanceAfter),
	})
	return result, nil
}

type DebitRequest struct {
	UserID      string
	AmountMinor int64
	ActorID     string
	Reason      string
	IP          string
}

// Debit removes funds from a balance, rejecting anything that would push it
// below zero. Reason is optional here; settlement debits carry a generated
// one.
func (s *LedgerService) Debit(ctx context.Context, req DebitRequest) (int64, error) {
	if req.AmountMinor <= 0 {
		return 0, ErrInvalidAmount
	}
	var balanceAfter int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		after, err := s.DebitTx(ctx, tx, req)
		if err != nil {
			return err
		}
		balanceAfter = after
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
		UserID:  req.UserID,
		Balance: money.FormatMinor(balanceAfter),
	})
	return balanceAfter, nil
}

// DebitTx is the transactional body of Debit. Session settlement calls it
// inside its own transaction so the debit commits or rolls back together
// with the session finish.
func (s *LedgerService) DebitTx(ctx context.Context, tx store.Tx, req DebitRequest) (int64, error) {
	if req.AmountMinor <= 0 {
		return 0, ErrInvalidAmount
	}
	user, err := s.users.GetForUpdate(ctx, tx, req.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	if user.Balance < req.AmountMinor {
		return 0, ErrInsufficientBalance
	}
	newBalance := user.Balance - req.AmountMinor
	if err := s.users.UpdateBalance(ctx, tx, user.ID, newBalance); err != nil {
		return 0, err
	}
	s.logBalanceAudit(ctx, tx, "balance_debit", user.ID, req.ActorID, user.Balance, newBalance, req.Reason, req.IP)
	return newBalance, nil
}

type AdjustRequest struct {
	UserID     string
	DeltaMinor int64
	ActorID    string
	Reason     string
	IP         string
}

// Adjust applies a signed administrative correction. A reason is mandatory;
// the adjustment still may not take the balance negative.
func (s *LedgerService) Adjust(ctx context.Context, req AdjustRequest) (int64, error) {
	if req.DeltaMinor == 0 {
		return 0, ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reason) == "" {
		return 0, ErrMissingReason
	}
	var balanceAfter int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.users.GetForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrUserNotFound
			}
			return err
		}
		newBalance := user.Balance + req.DeltaMinor
		if newBalance < 0 {
			return ErrInsufficientBalance
		}
		if err := s.users.UpdateBalance(ctx, tx, user.ID, newBalance); err != nil {
			return err
		}
		balanceAfter = newBalance
		s.logBalanceAudit(ctx, tx, "balance_adjust", user.ID, req.ActorID, user.Balance, newBalance, req.Reason, req.IP)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
		UserID:  req.UserID,
		Balance: money.FormatMinor(balanceAfter),
	})
	return balanceAfter, nil
}

// Audit failures never block a balance mutation; they are logged and the
// business operation completes.
func (s *LedgerService) logBalanceAudit(ctx context.Context, tx store.Execer, action, userID, actorID string, before, after int64, reason, ip string) {
	beforeData, _ := json.Marshal(map[string]string{"balance": money.FormatMinor(before)})
	afterData, _ := json.Marshal(map[string]string{"balance": money.FormatMinor(after)})
	err := s.audit.Log(ctx, tx, store.AuditInput{
		ActorUserID: actorID,
		Action:      action,
		EntityType:  "user",
		EntityID:    userID,
		Before:      string(beforeData),
		After:       string(afterData),
		Reason:      reason,
		IP:          ip,
	})
	if err != nil {
		log.Printf("audit write failed for %s on user %s: %v", action, userID, err)
	}
}
