package chat

import (
	"strings"
	"testing"

	"botforge/pkg/domain"
)

func TestBuildPromptMinimal(t *testing.T) {
	got := BuildPrompt("Helper", "", "", nil, "Hi")
	want := "You are Helper. \n\n" +
		"\n\nRespond to the user's message in a helpful and engaging way." +
		"\n\n" +
		"\nUser: Hi\nAssistant:"
	if got != want {
		t.Fatalf("prompt mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestBuildPromptWithKnowledgeAndHistory(t *testing.T) {
	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "What is Go?"},
		{Role: domain.RoleAssistant, Text: "A programming language."},
	}
	got := BuildPrompt("Tutor", "You teach Go.", "Go was released in 2009.\n\n", history, "Who made it?")
	want := "You are Tutor. You teach Go.\n\n" +
		"Use this knowledge to answer questions:\nGo was released in 2009.\n\n" +
		"\n\nRespond to the user's message in a helpful and engaging way.\n\n" +
		"Previous conversation:\nUser: What is Go?\nAssistant: A programming language.\n" +
		"\nUser: Who made it?\nAssistant:"
	if got != want {
		t.Fatalf("prompt mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	got := BuildPrompt("Helper", "desc", "", nil, "Hi")
	for _, section := range []string{"Use this knowledge", "Previous conversation:"} {
		if strings.Contains(got, section) {
			t.Fatalf("prompt should not contain %q:\n%s", section, got)
		}
	}
}
