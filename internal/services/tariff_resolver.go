package services

import (
	"context"
	"database/sql"
	"log"

	"parking/internal/models"
	"parking/internal/money"
	"parking/internal/store"

	"github.com/shopspring/decimal"
)

// Rate sources recorded in gate record snapshots.
const (
	RateSourceOverride = "override"
	RateSourceClass    = "class"
	RateSourceFallback = "fallback"
)

type ResolverTariffStore interface {
	GetByID(ctx context.Context, tariffID string) (store.TariffRow, error)
	GetActiveByClass(ctx context.Context, userClass string) (store.TariffRow, error)
}

// TariffResolverService resolves the hourly rate for a user. Resolution
// never fails: a per-user override wins, then the active class tariff, then
// a hardcoded fallback. Billing must not stop because configuration is
// missing, so lookup problems degrade to the next tier.
type TariffResolverService struct {
	tariffs ResolverTariffStore
}

func NewTariffResolver(tariffs ResolverTariffStore) *TariffResolverService {
	return &TariffResolverService{tariffs: tariffs}
}

func (s *TariffResolverService) Resolve(ctx context.Context, user store.UserRow) (decimal.Decimal, string) {
	if user.AssignedTariffID != nil && *user.AssignedTariffID != "" {
		tariff, err := s.tariffs.GetByID(ctx, *user.AssignedTariffID)
		switch {
		case err == nil && tariff.Active:
			if rate, err := money.ParseRate(tariff.HourlyRate); err == nil {
				return rate, RateSourceOverride
			}
			log.Printf("tariff %s has unparseable rate %q", tariff.ID, tariff.HourlyRate)
		case err != nil && err != sql.ErrNoRows:
			log.Printf("tariff override lookup failed for user %s: %v", user.ID, err)
		}
	}
	tariff, err := s.tariffs.GetActiveByClass(ctx, user.MembershipClass)
	if err == nil {
		if rate, err := money.ParseRate(tariff.HourlyRate); err == nil {
			return rate, RateSourceClass
		}
		log.Printf("tariff %s has unparseable rate %q", tariff.ID, tariff.HourlyRate)
	} else if err != sql.ErrNoRows {
		log.Printf("class tariff lookup failed for class %s: %v", user.MembershipClass, err)
	}
	return fallbackRate(user.MembershipClass), RateSourceFallback
}

func fallbackRate(userClass string) decimal.Decimal {
	raw := "500.00"
	if userClass == models.MembershipAssociated {
		raw = "250.00"
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NewFromInt(500)
	}
	return rate
}
