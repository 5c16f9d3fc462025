package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidPlate    = errors.New("invalid plate")
	ErrInvalidDocument = errors.New("invalid document")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidPassword = errors.New("invalid password")
)

var (
	plateRegex    = regexp.MustCompile(`^[A-Z0-9]{5,10}$`)
	documentRegex = regexp.MustCompile(`^[0-9]{6,12}$`)
)

func ValidatePlate(plate string) error {
	if !plateRegex.MatchString(plate) {
		return ErrInvalidPlate
	}
	return nil
}

func ValidateDocument(document string) error {
	if !documentRegex.MatchString(document) {
		return ErrInvalidDocument
	}
	return nil
}

func ValidateName(name string) error {
	if len(name) < 2 || len(name) > 100 {
		return ErrInvalidName
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}
