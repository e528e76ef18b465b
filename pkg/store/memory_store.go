package store

import (
	"errors"
	"sync"

	"botforge/pkg/domain"
)

// ErrNotFound is returned by memory-store mutations on unknown IDs.
var ErrNotFound = errors.New("record not found")

// MemoryStore keeps all records in-process. Used in tests and local runs
// without Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
	email map[string]string // email -> user ID
	bots  map[string]domain.Bot
	order []string // bot IDs, insertion order
	subs  map[string]domain.Subscription
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
		bots:  make(map[string]domain.Bot),
		subs:  make(map[string]domain.Subscription),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveBot stores or replaces a bot and tracks insertion order.
func (m *MemoryStore) SaveBot(b domain.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bots[b.ID]; !exists {
		m.order = append(m.order, b.ID)
	}
	m.bots[b.ID] = b
	return nil
}

// ListBots returns bots newest first.
func (m *MemoryStore) ListBots() ([]domain.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Bot, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if b, ok := m.bots[m.order[i]]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// ListBotsByCreator returns bots filtered by creator, newest first.
func (m *MemoryStore) ListBotsByCreator(creatorID string) ([]domain.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Bot, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if b, ok := m.bots[m.order[i]]; ok && b.CreatorID == creatorID {
			res = append(res, b)
		}
	}
	return res, nil
}

// GetBot retrieves a bot by ID.
func (m *MemoryStore) GetBot(id string) (domain.Bot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[id]
	return b, ok, nil
}

// DeleteBot removes a bot and its subscriptions.
func (m *MemoryStore) DeleteBot(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bots, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	for subID, sub := range m.subs {
		if sub.BotID == id {
			delete(m.subs, subID)
		}
	}
	return nil
}

// AppendTrainingFile adds a knowledge-file key to the end of a bot's list.
func (m *MemoryStore) AppendTrainingFile(botID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bot, ok := m.bots[botID]
	if !ok {
		return ErrNotFound
	}
	bot.TrainingData = append(append([]string(nil), bot.TrainingData...), key)
	m.bots[botID] = bot
	return nil
}

// SaveSubscription stores or replaces a subscription.
func (m *MemoryStore) SaveSubscription(sub domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

// HasActiveSubscription reports an active subscription for (user, bot).
func (m *MemoryStore) HasActiveSubscription(userID, botID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if sub.UserID == userID && sub.BotID == botID && sub.Active {
			return true, nil
		}
	}
	return false, nil
}

// ListActiveSubscriptionsByUser returns the user's active subscriptions.
func (m *MemoryStore) ListActiveSubscriptionsByUser(userID string) ([]domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Subscription, 0)
	for _, sub := range m.subs {
		if sub.UserID == userID && sub.Active {
			res = append(res, sub)
		}
	}
	return res, nil
}

// GetSubscriptionByStripeID looks up a subscription by its Stripe ID.
func (m *MemoryStore) GetSubscriptionByStripeID(stripeSubID string) (domain.Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if sub.StripeSubID == stripeSubID {
			return sub, true, nil
		}
	}
	return domain.Subscription{}, false, nil
}

// SetSubscriptionActive flips the active flag.
func (m *MemoryStore) SetSubscriptionActive(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return ErrNotFound
	}
	sub.Active = active
	m.subs[id] = sub
	return nil
}
