package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"botforge/pkg/domain"
)

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	replies []string
	errs    []error
	block   chan struct{}
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	i := len(g.prompts) - 1
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	reply := ""
	if i < len(g.replies) {
		reply = g.replies[i]
	}
	return reply, err
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func newTestService(t *testing.T, gen *stubGenerator, files TextFetcher) *Service {
	t.Helper()
	if files == nil {
		files = &fakeFiles{}
	}
	svc, err := NewService(NewKnowledgeLoader(files), gen)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSendBuildsExpectedPrompt(t *testing.T) {
	gen := &stubGenerator{replies: []string{"Hello!"}}
	svc := newTestService(t, gen, nil)
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1", Name: "Helper"}, true)

	turn, err := svc.Send(context.Background(), sess, "Hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Role != domain.RoleAssistant || turn.Text != "Hello!" {
		t.Fatalf("unexpected assistant turn: %+v", turn)
	}
	want := BuildPrompt("Helper", "", "", nil, "Hi")
	if gen.prompts[0] != want {
		t.Fatalf("prompt mismatch:\ngot:  %q\nwant: %q", gen.prompts[0], want)
	}
}

func TestSendHistoryExcludesCurrentMessage(t *testing.T) {
	gen := &stubGenerator{replies: []string{"first reply", "second reply"}}
	svc := newTestService(t, gen, nil)
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1", Name: "Helper"}, true)

	if _, err := svc.Send(context.Background(), sess, "one"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := svc.Send(context.Background(), sess, "two"); err != nil {
		t.Fatalf("second send: %v", err)
	}

	second := gen.prompts[1]
	if !strings.Contains(second, "Previous conversation:\nUser: one\nAssistant: first reply\n") {
		t.Fatalf("second prompt missing prior turns:\n%s", second)
	}
	if strings.Contains(second, "User: two\nAssistant: ") {
		t.Fatalf("current message must not appear in the history section:\n%s", second)
	}
	if !strings.HasSuffix(second, "\nUser: two\nAssistant:") {
		t.Fatalf("second prompt must end with the new message:\n%s", second)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	gen := &stubGenerator{}
	svc := newTestService(t, gen, nil)
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1"}, true)

	if _, err := svc.Send(context.Background(), sess, "   \n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator must not be called for empty input")
	}
	if len(sess.Snapshot()) != 0 {
		t.Fatalf("empty input must not be recorded")
	}
}

func TestSendRequiresAccess(t *testing.T) {
	gen := &stubGenerator{}
	svc := newTestService(t, gen, nil)
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1", PriceID: "price_123"}, false)

	if _, err := svc.Send(context.Background(), sess, "Hi"); !errors.Is(err, ErrSubscriptionRequired) {
		t.Fatalf("expected ErrSubscriptionRequired, got %v", err)
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator must not be called without access")
	}
	if len(sess.Snapshot()) != 0 {
		t.Fatalf("denied send must not be recorded")
	}
}

func TestSendGenerationFailureKeepsUserTurn(t *testing.T) {
	gen := &stubGenerator{
		replies: []string{"Hello back"},
		errs:    []error{nil, errors.New("upstream 500")},
	}
	svc := newTestService(t, gen, nil)
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1", Name: "Helper"}, true)

	if _, err := svc.Send(context.Background(), sess, "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := svc.Send(context.Background(), sess, "second"); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}

	turns := sess.Snapshot()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d: %+v", len(turns), turns)
	}
	if turns[0].Text != "first" || turns[0].Role != domain.RoleUser {
		t.Fatalf("unexpected turn 0: %+v", turns[0])
	}
	if turns[1].Text != "Hello back" || turns[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected turn 1: %+v", turns[1])
	}
	if turns[2].Text != "second" || turns[2].Role != domain.RoleUser {
		t.Fatalf("failed turn should keep the user message, got %+v", turns[2])
	}
}

func TestSendRejectsConcurrentSend(t *testing.T) {
	gen := &stubGenerator{replies: []string{"slow reply"}, block: make(chan struct{})}
	svc := newTestService(t, gen, nil)
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1"}, true)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(context.Background(), sess, "slow")
		done <- err
	}()

	// Wait for the first send to claim the session.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if !sess.beginSend() {
			break
		}
		sess.endSend()
		if time.Now().After(deadline) {
			t.Fatalf("first send never claimed the session")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := svc.Send(context.Background(), sess, "fast"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}

	close(gen.block)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	turns := sess.Snapshot()
	if len(turns) != 2 {
		t.Fatalf("only the first send should be recorded, got %+v", turns)
	}
}

func TestSendIncludesKnowledge(t *testing.T) {
	files := &fakeFiles{texts: map[string]string{"bots/b1/faq.txt": "We ship worldwide."}}
	gen := &stubGenerator{replies: []string{"ok"}}
	svc := newTestService(t, gen, files)
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{
		ID:           "b1",
		Name:         "Shop",
		TrainingData: []string{"bots/b1/faq.txt"},
	}, true)

	if _, err := svc.Send(context.Background(), sess, "Do you ship to Japan?"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(gen.prompts[0], "Use this knowledge to answer questions:\nWe ship worldwide.\n\n") {
		t.Fatalf("prompt missing knowledge section:\n%s", gen.prompts[0])
	}
}
