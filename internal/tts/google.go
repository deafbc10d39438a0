package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// GoogleClient synthesizes speech through the Google Translate TTS endpoint
// and returns MP3 bytes. The endpoint caps each request at ~200 characters,
// so longer text is split on whitespace and the MP3 segments concatenated.
type GoogleClient struct {
	HTTPClient *http.Client
	BaseURL    string
}

const googleTTSChunk = 200

func NewGoogleClient() *GoogleClient {
	return &GoogleClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    "https://translate.google.com/translate_tts",
	}
}

// Synthesize fetches audio for the given text and language tag.
func (g *GoogleClient) Synthesize(ctx context.Context, text, languageTag string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("google tts: empty text")
	}
	chunks := splitForSynthesis(text, googleTTSChunk)
	var audio []byte
	for i, chunk := range chunks {
		b, err := g.fetchChunk(ctx, chunk, languageTag, i, len(chunks))
		if err != nil {
			return nil, err
		}
		audio = append(audio, b...)
	}
	return audio, nil
}

func (g *GoogleClient) fetchChunk(ctx context.Context, text, languageTag string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", languageTag)
	q.Set("q", text)
	q.Set("textlen", fmt.Sprintf("%d", utf8.RuneCountInString(text)))
	q.Set("idx", fmt.Sprintf("%d", idx))
	q.Set("total", fmt.Sprintf("%d", total))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("google tts: status=%d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// splitForSynthesis cuts text into chunks of at most max runes, preferring
// whitespace boundaries.
func splitForSynthesis(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}
		cut := max
		for cut > 0 && runes[cut] != ' ' {
			cut--
		}
		if cut == 0 {
			cut = max
		}
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	return chunks
}
