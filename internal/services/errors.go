package services

import (
	"errors"
	"net/http"
)

// Sentinel errors for the wallet subsystem. Handlers map these onto HTTP
// statuses with HTTPStatus; stores and the reconciliation engine return them
// wrapped with context.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidAmount          = errors.New("amount must be a positive integer")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrGatewayUnavailable     = errors.New("gateway unavailable")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyProcessed       = errors.New("already processed")
)

// HTTPStatus maps a wallet error onto its response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInvalidStateTransition):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
