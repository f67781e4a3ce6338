package bundlecore

import "errors"

var (
	ErrSimulationRejected = errors.New("bundle simulation rejected")
	ErrSubmissionRejected = errors.New("bundle submission rejected")
	ErrTriggerEncoding    = errors.New("trigger re-encoding does not match observed hash")
	ErrOutcomeAlreadySet  = errors.New("attempt outcome already set")
	ErrAttemptInFlight    = errors.New("another attempt is in flight")
)
