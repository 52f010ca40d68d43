package safety

import "errors"

// Command rejections. State is never modified when one of these is returned.
var (
	ErrClosed             = errors.New("engine closed")
	ErrInvalidRadius      = errors.New("anchor radius must be positive")
	ErrInvalidPoint       = errors.New("anchor point out of range")
	ErrAnchorActive       = errors.New("anchor already down")
	ErrAnchorNotTriggered = errors.New("anchor alarm not sounding")
	ErrNoPosition         = errors.New("no position fix")
	ErrNoCountdown        = errors.New("no collision countdown running")
	ErrNothingToDismiss   = errors.New("no emergency or countdown active")
	ErrDismissRequired    = errors.New("emergency active, dismiss to clear")
)
