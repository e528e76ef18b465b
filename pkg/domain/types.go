package domain

import "time"

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Bot is a configured persona plus an ordered knowledge-file list.
// TrainingData holds object-store keys in upload order; the list only
// grows while the creator is adding files.
type Bot struct {
	ID            string    `json:"id"`
	CreatorID     string    `json:"creatorId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ProfilePicURL string    `json:"profilePicUrl"`
	TrainingData  []string  `json:"trainingData"`
	PriceID       string    `json:"priceId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Subscription gates chat access to a paid bot. Its lifecycle is driven
// by the payment webhook; the chat pipeline only reads Active.
type Subscription struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	BotID       string    `json:"botId"`
	StripeSubID string    `json:"-"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is one message exchanged in a chat session.
type Turn struct {
	Role TurnRole `json:"role"`
	Text string   `json:"text"`
}
