package domain

import "errors"

// Common domain errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternalServer     = errors.New("internal server error")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

// Workflow errors
var (
	ErrInvalidTransition = errors.New("action not allowed from current state")
	ErrGuardFailed       = errors.New("transition guard failed")
	ErrExternalFailure   = errors.New("external dependency failure")
)

// Funds and balance errors
var (
	ErrInsufficientFunds   = errors.New("institution funds insufficient")
	ErrInsufficientBalance = errors.New("member balance insufficient")
)
