package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrReadDatabaseRow    = errors.New("could not read database row")

	// Queue / handler errors
	ErrPermanent       = errors.New("permanent job error")
	ErrDelivery        = errors.New("message delivery failed")
	ErrEmptyCompletion = errors.New("model returned an empty completion")
	ErrUnknownJobKind  = errors.New("unknown job kind")
)
