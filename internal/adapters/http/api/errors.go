package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidID    = errors.New("invalid id")
	ErrInvalidLimit = errors.New("invalid limit")
	ErrMissingID    = errors.New("one of player_id or userId is required")
)
