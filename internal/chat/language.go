package chat

import "fmt"

// Language carries the tags the speech collaborators expect. RecognitionTag
// goes to the transcriber, SynthesisTag to the synthesizer.
type Language struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	RecognitionTag string `json:"recognition_tag"`
	SynthesisTag   string `json:"synthesis_tag"`
}

var languages = []Language{
	{ID: "en", DisplayName: "English", RecognitionTag: "en-US", SynthesisTag: "en"},
	{ID: "es", DisplayName: "Spanish", RecognitionTag: "es-ES", SynthesisTag: "es"},
	{ID: "fr", DisplayName: "French", RecognitionTag: "fr-FR", SynthesisTag: "fr"},
	{ID: "zh", DisplayName: "Chinese (Mandarin)", RecognitionTag: "zh-CN", SynthesisTag: "zh-CN"},
	{ID: "ja", DisplayName: "Japanese", RecognitionTag: "ja-JP", SynthesisTag: "ja"},
}

// DefaultLanguage is English; replies in English carry no language override
// clause in the system prompt.
func DefaultLanguage() Language { return languages[0] }

// Languages returns the closed set of supported languages.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LanguageByID looks up a language; unknown IDs are an error.
func LanguageByID(id string) (Language, error) {
	for _, l := range languages {
		if l.ID == id {
			return l, nil
		}
	}
	return Language{}, fmt.Errorf("unknown language %q", id)
}
