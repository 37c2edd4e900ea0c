package types

import "errors"

// Domain specific errors for authentication and authorization.
var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrBadRequest      = errors.New("bad request")
)

// Billing preconditions. Operations abort before any write when these fire.
var (
	ErrNoSeatsRemaining = errors.New("no seats remaining")
	ErrMemberNotActive  = errors.New("member is not active")
)
