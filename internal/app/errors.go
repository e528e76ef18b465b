package app

import "errors"

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidEmail       = errors.New("a valid email address is required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidToken       = errors.New("invalid or expired token")

	ErrBotNameRequired = errors.New("bot name is required")
	ErrBotNotFound     = errors.New("bot not found")
	ErrNotBotCreator   = errors.New("only the bot's creator may do this")

	ErrBotIsFree          = errors.New("bot does not require a subscription")
	ErrAlreadySubscribed  = errors.New("an active subscription already exists")
	ErrBillingUnavailable = errors.New("billing is not configured")
)
