package session

import "errors"

var (
	// ErrSessionActive rejects start and configuration commands while a
	// session is running. The configuration surface is immutable
	// mid-session; commands are rejected, not deferred.
	ErrSessionActive = errors.New("session: session already running")

	// ErrNoSession reports a query before any session has started.
	ErrNoSession = errors.New("session: no session")

	// ErrSessionFailed reports a query against a session that aborted on an
	// integrity violation.
	ErrSessionFailed = errors.New("session: session failed")

	// ErrNotResolved reports a result query before the trigger has fired.
	ErrNotResolved = errors.New("session: result not resolved")
)
