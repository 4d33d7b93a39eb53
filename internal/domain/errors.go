package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProviderSubmit      = errors.New("provider submit failed")
	ErrMalformedWebhook    = errors.New("malformed webhook payload")
	ErrInvalidTransition   = errors.New("invalid job transition")
	ErrDuplicateOperation  = errors.New("duplicate operation")
)
