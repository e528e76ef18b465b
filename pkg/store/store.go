package store

import "botforge/pkg/domain"

// Store defines persistence operations for users, bots, and subscriptions.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// bots
	SaveBot(domain.Bot) error
	ListBots() ([]domain.Bot, error)
	ListBotsByCreator(creatorID string) ([]domain.Bot, error)
	GetBot(id string) (domain.Bot, bool, error)
	DeleteBot(id string) error
	// AppendTrainingFile adds a knowledge-file key to the end of the bot's
	// ordered training-data list.
	AppendTrainingFile(botID, key string) error

	// subscriptions
	SaveSubscription(domain.Subscription) error
	HasActiveSubscription(userID, botID string) (bool, error)
	ListActiveSubscriptionsByUser(userID string) ([]domain.Subscription, error)
	GetSubscriptionByStripeID(stripeSubID string) (domain.Subscription, bool, error)
	SetSubscriptionActive(id string, active bool) error
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
