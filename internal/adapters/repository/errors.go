package repository

import "errors"

// Causes wrapped inside classified store errors.
var (
	ErrPlayerNotFound    = errors.New("player not found")
	ErrAggregateNotFound = errors.New("player has no aggregate")
	ErrNameTaken         = errors.New("player name already taken")
	ErrEmptyName         = errors.New("player name must not be empty")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrLockWait          = errors.New("player lock wait exceeded")
	ErrClosed            = errors.New("store closed")
	ErrTotalOverflow     = errors.New("total would overflow int64")
)
