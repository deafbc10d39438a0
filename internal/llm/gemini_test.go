package llm

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
)

func TestGenaiRole(t *testing.T) {
	var got genai.Role = genaiRole(chat.RoleAssistant)
	if got != genai.RoleModel {
		t.Fatalf("assistant turns must map to the model role, got %q", got)
	}
	got = genaiRole(chat.RoleUser)
	if got != genai.RoleUser {
		t.Fatalf("user turns must map to the user role, got %q", got)
	}
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), "", "gemini-2.5-flash"); err == nil {
		t.Fatalf("missing API key must be rejected")
	}
}
