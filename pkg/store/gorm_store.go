package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"botforge/pkg/domain"
)

const migrateLockID int64 = 48104810

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BotModel{}, &SubscriptionModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM subscription_models s
				WHERE NOT EXISTS (SELECT 1 FROM bot_models b WHERE b.id = s.bot_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'subscription_models'
					AND constraint_name = 'subscription_models_bot_id_fkey'
				) THEN
					ALTER TABLE subscription_models
					ADD CONSTRAINT subscription_models_bot_id_fkey
					FOREIGN KEY (bot_id) REFERENCES bot_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure subscription foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "status", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveBot stores or updates a bot.
func (s *GormStore) SaveBot(b domain.Bot) error {
	model, err := botToModel(b)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "profile_pic_url", "training_data", "price_id"}),
	}).Create(&model).Error
}

// ListBots returns all bots, newest first.
func (s *GormStore) ListBots() ([]domain.Bot, error) {
	return s.listBots()
}

// ListBotsByCreator returns bots created by one user, newest first.
func (s *GormStore) ListBotsByCreator(creatorID string) ([]domain.Bot, error) {
	return s.listBots("creator_id = ?", creatorID)
}

func (s *GormStore) listBots(conds ...any) ([]domain.Bot, error) {
	var models []BotModel
	tx := s.db.Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Bot, 0, len(models))
	for _, m := range models {
		res = append(res, botFromModel(m))
	}
	return res, nil
}

// GetBot retrieves a bot.
func (s *GormStore) GetBot(id string) (domain.Bot, bool, error) {
	var model BotModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Bot{}, false, nil
		}
		return domain.Bot{}, false, err
	}
	return botFromModel(model), true, nil
}

// DeleteBot removes a bot (subscriptions handled by FK cascade).
func (s *GormStore) DeleteBot(id string) error {
	return s.db.Delete(&BotModel{}, "id = ?", id).Error
}

// AppendTrainingFile adds a knowledge-file key to the end of a bot's list.
func (s *GormStore) AppendTrainingFile(botID, key string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model BotModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", botID).Error; err != nil {
			return err
		}
		bot := botFromModel(model)
		bot.TrainingData = append(bot.TrainingData, key)
		raw, err := json.Marshal(bot.TrainingData)
		if err != nil {
			return err
		}
		return tx.Model(&BotModel{}).Where("id = ?", botID).
			Update("training_data", raw).Error
	})
}

// SaveSubscription stores or updates a subscription.
func (s *GormStore) SaveSubscription(sub domain.Subscription) error {
	model := subscriptionToModel(sub)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stripe_sub_id", "active", "updated_at"}),
	}).Create(&model).Error
}

// HasActiveSubscription reports whether the user holds an active
// subscription for the bot.
func (s *GormStore) HasActiveSubscription(userID, botID string) (bool, error) {
	var count int64
	if err := s.db.Model(&SubscriptionModel{}).
		Where("user_id = ? AND bot_id = ? AND active = ?", userID, botID, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListActiveSubscriptionsByUser returns the user's active subscriptions.
func (s *GormStore) ListActiveSubscriptionsByUser(userID string) ([]domain.Subscription, error) {
	var models []SubscriptionModel
	if err := s.db.Where("user_id = ? AND active = ?", userID, true).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Subscription, 0, len(models))
	for _, m := range models {
		res = append(res, subscriptionFromModel(m))
	}
	return res, nil
}

// GetSubscriptionByStripeID looks up a subscription by its Stripe ID.
func (s *GormStore) GetSubscriptionByStripeID(stripeSubID string) (domain.Subscription, bool, error) {
	var model SubscriptionModel
	if err := s.db.First(&model, "stripe_sub_id = ?", stripeSubID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Subscription{}, false, nil
		}
		return domain.Subscription{}, false, err
	}
	return subscriptionFromModel(model), true, nil
}

// SetSubscriptionActive flips the active flag.
func (s *GormStore) SetSubscriptionActive(id string, active bool) error {
	return s.db.Model(&SubscriptionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"active":     active,
			"updated_at": time.Now().UTC(),
		}).Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func botToModel(b domain.Bot) (BotModel, error) {
	trainingData := b.TrainingData
	if trainingData == nil {
		trainingData = []string{}
	}
	raw, err := json.Marshal(trainingData)
	if err != nil {
		return BotModel{}, fmt.Errorf("encode training data: %w", err)
	}
	return BotModel{
		ID:            b.ID,
		CreatorID:     b.CreatorID,
		Name:          b.Name,
		Description:   b.Description,
		ProfilePicURL: b.ProfilePicURL,
		TrainingData:  raw,
		PriceID:       b.PriceID,
		CreatedAt:     b.CreatedAt,
	}, nil
}

func botFromModel(m BotModel) domain.Bot {
	var trainingData []string
	if len(m.TrainingData) > 0 {
		_ = json.Unmarshal(m.TrainingData, &trainingData)
	}
	return domain.Bot{
		ID:            m.ID,
		CreatorID:     m.CreatorID,
		Name:          m.Name,
		Description:   m.Description,
		ProfilePicURL: m.ProfilePicURL,
		TrainingData:  trainingData,
		PriceID:       m.PriceID,
		CreatedAt:     m.CreatedAt,
	}
}

func subscriptionToModel(sub domain.Subscription) SubscriptionModel {
	return SubscriptionModel{
		ID:          sub.ID,
		UserID:      sub.UserID,
		BotID:       sub.BotID,
		StripeSubID: sub.StripeSubID,
		Active:      sub.Active,
		CreatedAt:   sub.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}
}

func subscriptionFromModel(m SubscriptionModel) domain.Subscription {
	return domain.Subscription{
		ID:          m.ID,
		UserID:      m.UserID,
		BotID:       m.BotID,
		StripeSubID: m.StripeSubID,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
	}
}
