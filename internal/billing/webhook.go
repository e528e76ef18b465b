package billing

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"botforge/internal/util"
	"botforge/pkg/domain"
)

// VerifyEvent checks the webhook signature and parses the event payload.
func (c *Client) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

// HandleEvent applies a verified Stripe event to the subscription store.
// Unknown event types and events referencing unknown subscriptions are
// acknowledged without effect so Stripe does not retry them forever.
func (c *Client) HandleEvent(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return c.handleCheckoutCompleted(event)
	case "customer.subscription.updated", "customer.subscription.deleted":
		return c.handleSubscriptionChanged(event)
	default:
		slog.Debug("ignoring stripe event", "type", event.Type)
		return nil
	}
}

func (c *Client) handleCheckoutCompleted(event stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	botID := cs.Metadata["botId"]
	userID := cs.Metadata["userId"]
	if botID == "" || userID == "" || cs.Subscription == nil {
		slog.Warn("checkout completed without usable metadata",
			"event_id", event.ID, "bot_id", botID, "user_id", userID)
		return nil
	}
	sub := domain.Subscription{
		ID:          util.NewID(),
		UserID:      userID,
		BotID:       botID,
		StripeSubID: cs.Subscription.ID,
		Active:      true,
	}
	if err := c.store.SaveSubscription(sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	slog.Info("subscription activated", "user_id", userID, "bot_id", botID)
	return nil
}

func (c *Client) handleSubscriptionChanged(event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	existing, ok, err := c.store.GetSubscriptionByStripeID(stripeSub.ID)
	if err != nil {
		return fmt.Errorf("lookup subscription: %w", err)
	}
	if !ok {
		slog.Warn("stripe event for unknown subscription",
			"event_id", event.ID, "stripe_sub_id", stripeSub.ID)
		return nil
	}
	active := stripeSub.Status == stripe.SubscriptionStatusActive
	if err := c.store.SetSubscriptionActive(existing.ID, active); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	slog.Info("subscription status changed",
		"user_id", existing.UserID, "bot_id", existing.BotID, "active", active)
	return nil
}
