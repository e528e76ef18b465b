package chat

import "errors"

var (
	// ErrEmptyMessage indicates blank user input; rejected before any I/O.
	ErrEmptyMessage = errors.New("message text required")
	// ErrSubscriptionRequired indicates the session has no chat access.
	ErrSubscriptionRequired = errors.New("subscription required to chat with this bot")
	// ErrSendInFlight indicates another send is still running on the session.
	ErrSendInFlight = errors.New("a send is already in progress")
	// ErrGenerationFailed wraps any generation-endpoint failure.
	ErrGenerationFailed = errors.New("failed to generate a reply")
	// ErrSessionNotFound indicates an unknown or expired chat session.
	ErrSessionNotFound = errors.New("chat session not found")
)
