package execution

import "errors"

var (
	// ErrPositionOpen rejects a signal or an open while a position is live.
	ErrPositionOpen = errors.New("execution: position already open")
	// ErrSignalPending rejects a second signal while one awaits T+1.
	ErrSignalPending = errors.New("execution: signal already pending")
	// ErrUnknownOrder marks a close for an order id that is not open.
	ErrUnknownOrder = errors.New("execution: unknown order id")
	// ErrMissingData drops a pending signal whose option bar is unusable.
	ErrMissingData = errors.New("execution: missing option data")
)
