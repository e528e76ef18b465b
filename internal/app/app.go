package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"botforge/internal/billing"
	"botforge/internal/chat"
	"botforge/internal/util"
	"botforge/pkg/auth"
	"botforge/pkg/domain"
	"botforge/pkg/storage"
	"botforge/pkg/store"
)

// Upload carries one multipart file on its way to object storage.
type Upload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	Filename    string
}

// App implements the marketplace use cases on top of the persistence,
// storage, chat, and billing layers. HTTP handlers stay thin and call in
// here.
type App struct {
	store        store.Store
	sessions     store.SessionStore
	pics         storage.ObjectStore
	files        storage.ObjectStore
	chat         *chat.Service
	chatSessions *chat.SessionManager
	billing      *billing.Client
}

// New wires the application service. billing may be nil when Stripe is not
// configured; checkout then fails with ErrBillingUnavailable while free bots
// keep working.
func New(
	st store.Store,
	sessions store.SessionStore,
	pics, files storage.ObjectStore,
	chatSvc *chat.Service,
	chatSessions *chat.SessionManager,
	billingClient *billing.Client,
) (*App, error) {
	if st == nil || sessions == nil || pics == nil || files == nil {
		return nil, errors.New("store, sessions, and object stores are required")
	}
	if chatSvc == nil || chatSessions == nil {
		return nil, errors.New("chat service and session manager are required")
	}
	return &App{
		store:        st,
		sessions:     sessions,
		pics:         pics,
		files:        files,
		chat:         chatSvc,
		chatSessions: chatSessions,
		billing:      billingClient,
	}, nil
}

// ---- auth ----

// SignUp registers a user and returns it with a fresh session token.
func (a *App) SignUp(email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.User{}, "", ErrInvalidEmail
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, "", ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		Status:       domain.StatusActive,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and returns the user with a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.Status != domain.StatusActive {
		return domain.User{}, "", ErrAccountDisabled
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a bearer token to its user.
func (a *App) UserFromToken(token string) (domain.User, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrInvalidToken
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok || user.Status != domain.StatusActive {
		return domain.User{}, ErrInvalidToken
	}
	return user, nil
}

// ---- bots ----

// CreateBot creates a bot, uploading the optional profile picture to the
// public picture bucket. A non-empty priceID marks the bot as paid.
func (a *App) CreateBot(ctx context.Context, creatorID, name, description, priceID string, picture *Upload) (domain.Bot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Bot{}, ErrBotNameRequired
	}
	bot := domain.Bot{
		ID:          util.NewID(),
		CreatorID:   creatorID,
		Name:        name,
		Description: strings.TrimSpace(description),
		PriceID:     strings.TrimSpace(priceID),
		CreatedAt:   time.Now().UTC(),
	}
	if picture != nil {
		key := buildStorageKey(bot.ID, picture.Filename)
		if err := a.pics.Put(ctx, key, picture.Reader, picture.Size, picture.ContentType); err != nil {
			return domain.Bot{}, fmt.Errorf("upload profile picture: %w", err)
		}
		bot.ProfilePicURL = a.pics.PublicURL(key)
	}
	if err := a.store.SaveBot(bot); err != nil {
		return domain.Bot{}, fmt.Errorf("save bot: %w", err)
	}
	return bot, nil
}

// AddTrainingFile uploads a knowledge file for the bot and appends its key to
// the bot's training-data list. Creator only.
func (a *App) AddTrainingFile(ctx context.Context, userID, botID string, file Upload) (string, error) {
	bot, err := a.ownedBot(userID, botID)
	if err != nil {
		return "", err
	}
	key := "bots/" + bot.ID + "/" + buildStorageKey(bot.ID, file.Filename)
	if err := a.files.Put(ctx, key, file.Reader, file.Size, file.ContentType); err != nil {
		return "", fmt.Errorf("upload training file: %w", err)
	}
	if err := a.store.AppendTrainingFile(bot.ID, key); err != nil {
		return "", fmt.Errorf("record training file: %w", err)
	}
	return key, nil
}

// ListBots returns every bot, newest first.
func (a *App) ListBots() ([]domain.Bot, error) {
	return a.store.ListBots()
}

// ListMyBots returns the caller's bots.
func (a *App) ListMyBots(userID string) ([]domain.Bot, error) {
	return a.store.ListBotsByCreator(userID)
}

// GetBot returns one bot.
func (a *App) GetBot(botID string) (domain.Bot, error) {
	bot, ok, err := a.store.GetBot(botID)
	if err != nil {
		return domain.Bot{}, fmt.Errorf("lookup bot: %w", err)
	}
	if !ok {
		return domain.Bot{}, ErrBotNotFound
	}
	return bot, nil
}

// DeleteBot removes the bot and its stored training files. Object deletion
// is best-effort: a missing object never blocks the delete.
func (a *App) DeleteBot(ctx context.Context, userID, botID string) error {
	bot, err := a.ownedBot(userID, botID)
	if err != nil {
		return err
	}
	for _, key := range bot.TrainingData {
		if err := a.files.Delete(ctx, key); err != nil {
			slog.Warn("could not delete training file", "bot_id", bot.ID, "key", key, "error", err)
		}
	}
	if err := a.store.DeleteBot(bot.ID); err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return nil
}

// ---- subscriptions & billing ----

// MySubscriptions returns the caller's active subscriptions.
func (a *App) MySubscriptions(userID string) ([]domain.Subscription, error) {
	return a.store.ListActiveSubscriptionsByUser(userID)
}

// Checkout creates a Stripe checkout session for a paid bot and returns the
// payment page URL.
func (a *App) Checkout(userID, botID string) (string, error) {
	if a.billing == nil {
		return "", ErrBillingUnavailable
	}
	bot, err := a.GetBot(botID)
	if err != nil {
		return "", err
	}
	if bot.PriceID == "" {
		return "", ErrBotIsFree
	}
	active, err := a.store.HasActiveSubscription(userID, bot.ID)
	if err != nil {
		return "", fmt.Errorf("check subscription: %w", err)
	}
	if active {
		return "", ErrAlreadySubscribed
	}
	return a.billing.NewCheckoutSession(userID, bot)
}

// CanChat reports whether the user may chat with the bot: its creator, any
// user of a free bot, or a holder of an active subscription.
func (a *App) CanChat(userID string, bot domain.Bot) (bool, error) {
	if bot.CreatorID == userID || bot.PriceID == "" {
		return true, nil
	}
	return a.store.HasActiveSubscription(userID, bot.ID)
}

// ---- chat ----

// OpenChat starts a chat session with the bot. Access is evaluated once here
// and fixed for the session's lifetime.
func (a *App) OpenChat(userID, botID string) (*chat.Session, error) {
	bot, err := a.GetBot(botID)
	if err != nil {
		return nil, err
	}
	access, err := a.CanChat(userID, bot)
	if err != nil {
		return nil, fmt.Errorf("check chat access: %w", err)
	}
	return a.chatSessions.Open(userID, bot, access), nil
}

// SendMessage runs one chat turn on the user's session.
func (a *App) SendMessage(ctx context.Context, userID, sessionID, text string) (domain.Turn, error) {
	sess, err := a.chatSessions.Get(sessionID, userID)
	if err != nil {
		return domain.Turn{}, err
	}
	return a.chat.Send(ctx, sess, text)
}

// ChatHistory returns the session transcript in order.
func (a *App) ChatHistory(userID, sessionID string) ([]domain.Turn, error) {
	sess, err := a.chatSessions.Get(sessionID, userID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// CloseChat discards the session and its transcript.
func (a *App) CloseChat(userID, sessionID string) error {
	return a.chatSessions.Close(sessionID, userID)
}

// ---- helpers ----

func (a *App) ownedBot(userID, botID string) (domain.Bot, error) {
	bot, err := a.GetBot(botID)
	if err != nil {
		return domain.Bot{}, err
	}
	if bot.CreatorID != userID {
		return domain.Bot{}, ErrNotBotCreator
	}
	return bot, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

// buildStorageKey mirrors the upload naming scheme: botID, timestamp, and the
// sanitized original extension keep keys unique and traceable.
func buildStorageKey(botID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return fmt.Sprintf("%s-%d%s", botID, time.Now().UnixMilli(), ext)
}
