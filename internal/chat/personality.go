package chat

import "fmt"

// Personality describes one of the fixed assistant personas. Selecting a
// personality is a hard context reset: the session's turns are cleared.
type Personality struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	SystemPrompt string `json:"-"`
}

var personalities = []Personality{
	{
		ID:          "general",
		DisplayName: "General Assistant",
		Description: "A helpful AI assistant for general queries",
		SystemPrompt: "You are a helpful, friendly, and knowledgeable AI assistant. " +
			"Provide clear, accurate, and helpful responses to user questions.",
	},
	{
		ID:          "study-buddy",
		DisplayName: "Study Buddy",
		Description: "Your friendly learning companion",
		SystemPrompt: "You are a patient and encouraging study buddy. Help users learn by " +
			"explaining concepts clearly, breaking down complex topics, providing examples, " +
			"and encouraging questions. Be supportive and enthusiastic about learning.",
	},
	{
		ID:          "fitness-coach",
		DisplayName: "Fitness Coach",
		Description: "Your personal fitness and wellness guide",
		SystemPrompt: "You are an energetic and motivating fitness coach. Provide workout advice, " +
			"nutrition tips, and encouragement. Be positive, supportive, and focus on healthy, " +
			"sustainable fitness practices. Always remind users to consult healthcare professionals " +
			"for medical advice.",
	},
	{
		ID:          "gaming-helper",
		DisplayName: "Gaming Helper",
		Description: "Your gaming tips and tricks companion",
		SystemPrompt: "You are an enthusiastic gaming expert. Help users with game strategies, tips, " +
			"recommendations, and gaming-related questions. Be fun, engaging, and knowledgeable about " +
			"various gaming platforms and genres.",
	},
}

// DefaultPersonality is the persona a new session starts with.
func DefaultPersonality() Personality { return personalities[0] }

// Personalities returns the closed set of available personas.
func Personalities() []Personality {
	out := make([]Personality, len(personalities))
	copy(out, personalities)
	return out
}

// PersonalityByID looks up a persona; unknown IDs are an error.
func PersonalityByID(id string) (Personality, error) {
	for _, p := range personalities {
		if p.ID == id {
			return p, nil
		}
	}
	return Personality{}, fmt.Errorf("unknown personality %q", id)
}
