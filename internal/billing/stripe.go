package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"

	"botforge/pkg/domain"
)

// Monthly price for every paid bot, in cents.
const monthlyPriceCents = 500

// Store is the subscription persistence billing needs.
type Store interface {
	SaveSubscription(domain.Subscription) error
	GetSubscriptionByStripeID(stripeSubID string) (domain.Subscription, bool, error)
	SetSubscriptionActive(id string, active bool) error
}

// Client drives Stripe checkout and webhook processing.
type Client struct {
	store         Store
	webhookSecret string
	publicBaseURL string
}

// NewClient configures the Stripe SDK and returns a billing client.
// publicBaseURL is where the browser is sent back after checkout.
func NewClient(apiKey, webhookSecret, publicBaseURL string, store Store) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("stripe api key required")
	}
	if store == nil {
		return nil, errors.New("subscription store required")
	}
	stripe.Key = apiKey
	return &Client{
		store:         store,
		webhookSecret: webhookSecret,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// NewCheckoutSession creates a Stripe Checkout session for a monthly
// subscription to the bot and returns the hosted payment page URL. The user
// and bot IDs ride along as metadata so the webhook can tie the completed
// checkout back to a subscription row.
func (c *Client) NewCheckoutSession(userID string, bot domain.Bot) (string, error) {
	botURL := c.publicBaseURL + "/bot/" + bot.ID
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(monthlyPriceCents),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String("month"),
				},
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Subscription to " + bot.Name),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(botURL + "?success=true"),
		CancelURL:  stripe.String(botURL + "?canceled=true"),
	}
	params.AddMetadata("botId", bot.ID)
	params.AddMetadata("userId", userID)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}
