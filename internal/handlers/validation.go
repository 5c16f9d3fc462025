package handlers

import (
	"errors"
	"strconv"

	"parking/internal/money"

	"github.com/shopspring/decimal"
)

var errInvalidAmount = errors.New("invalid amount")
var errInvalidRate = errors.New("invalid rate")

func parseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

func parseSignedMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount == 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := money.ParseRate(raw)
	if err != nil {
		return decimal.Zero, errInvalidRate
	}
	return rate, nil
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
