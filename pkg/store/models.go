package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Status       string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type BotModel struct {
	ID            string `gorm:"primaryKey"`
	CreatorID     string `gorm:"not null;index"`
	Name          string `gorm:"not null"`
	Description   string `gorm:"type:text"`
	ProfilePicURL string
	TrainingData  datatypes.JSON `gorm:"type:jsonb"`
	PriceID       string
	CreatedAt     time.Time `gorm:"not null;index"`
}

type SubscriptionModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index:idx_sub_user_bot"`
	BotID       string `gorm:"not null;index:idx_sub_user_bot"`
	StripeSubID string `gorm:"index"`
	Active      bool   `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}
