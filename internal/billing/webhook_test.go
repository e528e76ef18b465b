package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"botforge/pkg/domain"
	"botforge/pkg/store"
)

const webhookTestSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestClient(t *testing.T, s Store) *Client {
	t.Helper()
	client, err := NewClient("sk_test_dummy", webhookTestSecret, "https://botforge.example", s)
	if err != nil {
		t.Fatalf("new billing client: %v", err)
	}
	return client
}

func TestVerifyEventRejectsBadSignature(t *testing.T) {
	client := newTestClient(t, store.NewMemoryStore())
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	if _, err := client.VerifyEvent(payload, "t=1,v1=deadbeef"); err == nil {
		t.Fatalf("expected signature verification to fail")
	}
}

func TestCheckoutCompletedCreatesSubscription(t *testing.T) {
	mem := store.NewMemoryStore()
	client := newTestClient(t, mem)

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"subscription": "sub_123",
			"metadata": {"botId": "bot-1", "userId": "user-1"}
		}}
	}`)
	event, err := client.VerifyEvent(payload, signPayload(t, payload))
	if err != nil {
		t.Fatalf("verify event: %v", err)
	}
	if err := client.HandleEvent(event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	active, err := mem.HasActiveSubscription("user-1", "bot-1")
	if err != nil {
		t.Fatalf("has active subscription: %v", err)
	}
	if !active {
		t.Fatalf("completed checkout should activate the subscription")
	}
	sub, ok, err := mem.GetSubscriptionByStripeID("sub_123")
	if err != nil || !ok {
		t.Fatalf("subscription not stored by stripe id: ok=%v err=%v", ok, err)
	}
	if sub.UserID != "user-1" || sub.BotID != "bot-1" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
}

func TestSubscriptionDeletedDeactivates(t *testing.T) {
	mem := store.NewMemoryStore()
	if err := mem.SaveSubscription(domain.Subscription{
		ID: "sub-row-1", UserID: "user-1", BotID: "bot-1",
		StripeSubID: "sub_123", Active: true,
	}); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	client := newTestClient(t, mem)

	payload := []byte(`{
		"id": "evt_2",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_123", "status": "canceled"}}
	}`)
	event, err := client.VerifyEvent(payload, signPayload(t, payload))
	if err != nil {
		t.Fatalf("verify event: %v", err)
	}
	if err := client.HandleEvent(event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	active, err := mem.HasActiveSubscription("user-1", "bot-1")
	if err != nil {
		t.Fatalf("has active subscription: %v", err)
	}
	if active {
		t.Fatalf("deleted subscription should be inactive")
	}
}

func TestUnknownSubscriptionIsAcknowledged(t *testing.T) {
	client := newTestClient(t, store.NewMemoryStore())
	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_unknown", "status": "active"}}
	}`)
	event, err := client.VerifyEvent(payload, signPayload(t, payload))
	if err != nil {
		t.Fatalf("verify event: %v", err)
	}
	if err := client.HandleEvent(event); err != nil {
		t.Fatalf("unknown subscription should be acknowledged, got %v", err)
	}
}
