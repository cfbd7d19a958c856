package recall

import "errors"

var (
	// ErrInvalidDelay is returned for a requested delay outside [1, maxRecallTime].
	ErrInvalidDelay = errors.New("recall: invalid delay")
	// ErrHandleUnresolved means the send path produced no deletable message id.
	ErrHandleUnresolved = errors.New("recall: message handle unresolved")
	// ErrDeleteFailed wraps a platform error returned by a delete call.
	ErrDeleteFailed = errors.New("recall: delete failed")
	// ErrPermissionDenied is returned when adminOnly is set and the caller is not an admin.
	ErrPermissionDenied = errors.New("recall: permission denied")
	// ErrRecallDisabled is returned when recall is switched off for the session.
	ErrRecallDisabled = errors.New("recall: disabled for this session")
	// ErrNotGroup is returned by whitelist commands issued outside a group.
	ErrNotGroup = errors.New("recall: not a group session")
	// ErrUnknownAction is returned when cancelling an id that is not in flight.
	ErrUnknownAction = errors.New("recall: unknown action")
	// ErrShuttingDown is returned once Shutdown has started.
	ErrShuttingDown = errors.New("recall: shutting down")
)
