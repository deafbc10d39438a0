package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
)

// GeminiClient generates replies through the Gemini API.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a completion client using an API key.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key missing")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelName: modelName}, nil
}

// genaiRole maps a chat role onto the API's role values.
func genaiRole(r chat.Role) genai.Role {
	if r == chat.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// Generate sends the assembled request and returns the reply text. Any
// transport or service failure is classified as a completion-service error
// so the controller can recover it into a synthetic assistant turn.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	var contents []*genai.Content
	for _, t := range req.History {
		contents = append(contents, genai.NewContentFromText(t.Content, genaiRole(t.Role)))
	}
	contents = append(contents, genai.NewContentFromText(req.NewMessage, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %v: %w", err, chat.ErrCompletionService)
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text: %w", chat.ErrCompletionService)
	}
	return text, nil
}
