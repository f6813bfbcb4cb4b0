package domain

import "errors"

// Error kinds visible to users and admins. Handlers map these onto HTTP
// statuses; services wrap them with context via fmt.Errorf and %w.
var (
	ErrInvalidInput          = errors.New("invalid_input")
	ErrDuplicateRequest      = errors.New("duplicate_active_request")
	ErrWaitingAreaFull       = errors.New("waiting_area_full")
	ErrNotInWaiting          = errors.New("not_in_waiting")
	ErrSameMode              = errors.New("same_mode")
	ErrNoActiveSession       = errors.New("no_active_session")
	ErrNotFound              = errors.New("not_found")
	ErrPileNotFound          = errors.New("pile_not_found")
	ErrInvalidDispatchPolicy = errors.New("invalid_dispatch_policy")
	ErrPileProtocolViolation = errors.New("pile_protocol_violation")
	ErrPersistenceFailure    = errors.New("persistence_failure")
)
