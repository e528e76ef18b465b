package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"botforge/pkg/ai"
	"botforge/pkg/domain"
)

// Service runs one chat turn end to end: it validates access, assembles the
// prompt from persona, knowledge, and history, calls the generator, and
// records both sides of the exchange on the session.
type Service struct {
	knowledge *KnowledgeLoader
	generator ai.Generator
}

// NewService builds the chat service.
func NewService(knowledge *KnowledgeLoader, generator ai.Generator) (*Service, error) {
	if knowledge == nil {
		return nil, errors.New("knowledge loader required")
	}
	if generator == nil {
		return nil, errors.New("generator required")
	}
	return &Service{knowledge: knowledge, generator: generator}, nil
}

// Send runs a single user turn against the session's bot and returns the
// assistant turn. The user turn is appended before generation starts, so a
// failed generation leaves the user's message in the transcript with no
// assistant reply after it. Only one send may run per session at a time.
func (s *Service) Send(ctx context.Context, sess *Session, text string) (domain.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Turn{}, ErrEmptyMessage
	}
	if !sess.AccessGranted() {
		return domain.Turn{}, ErrSubscriptionRequired
	}
	if !sess.beginSend() {
		return domain.Turn{}, ErrSendInFlight
	}
	defer sess.endSend()

	// The prompt's history section carries only turns that existed before
	// this send; the new message rides in the prompt's User line.
	history := sess.Snapshot()
	sess.Append(domain.Turn{Role: domain.RoleUser, Text: text})

	knowledge := s.knowledge.Load(ctx, sess.Bot)
	prompt := BuildPrompt(sess.Bot.Name, sess.Bot.Description, knowledge, history, text)

	reply, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	turn := domain.Turn{Role: domain.RoleAssistant, Text: reply}
	sess.Append(turn)
	return turn, nil
}
