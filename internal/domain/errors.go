package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every request validation failure
var ErrValidation = errors.New("invalid request")

var (
	ErrPlayerNotFound   = fmt.Errorf("%w: no player found", ErrValidation)
	ErrAmbiguousPlayer  = fmt.Errorf("%w: multiple players match", ErrValidation)
	ErrTeamNotFound     = fmt.Errorf("%w: could not resolve team", ErrValidation)
	ErrPermissionDenied = fmt.Errorf("%w: admin rights required", ErrValidation)
	ErrUnknownKind      = fmt.Errorf("%w: unknown request kind", ErrValidation)
	ErrMissingTarget    = fmt.Errorf("%w: target required", ErrValidation)
)

// ErrStoreUnavailable wraps persistence failures. Callers report it generically.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrActionFailed wraps a failed team change on the game server
var ErrActionFailed = errors.New("team change failed")
