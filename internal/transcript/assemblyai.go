package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
)

// AssemblyAIClient transcribes one audio clip at a time through the
// AssemblyAI batch API: upload the bytes, create a transcript job, poll
// until it settles.
type AssemblyAIClient struct {
	HTTPClient   *http.Client
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
}

func NewAssemblyAIClient(apiKey string) *AssemblyAIClient {
	return &AssemblyAIClient{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		APIKey:       apiKey,
		BaseURL:      "https://api.assemblyai.com/v2",
		PollInterval: 500 * time.Millisecond,
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error,omitempty"`
}

// Transcribe converts the clip to text in the given recognition language.
// An empty result from a completed job comes back as the unclear-audio
// sentinel rather than an error, so the turn sequence stays consistent and
// the user can correct it afterwards.
func (c *AssemblyAIClient) Transcribe(ctx context.Context, audio []byte, recognitionTag string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("assemblyai api key missing: %w", chat.ErrTranscriptionUnavailable)
	}
	if len(audio) == 0 {
		return "", chat.ErrCaptureEmpty
	}

	uploadURL, err := c.upload(ctx, audio)
	if err != nil {
		return "", err
	}

	id, err := c.createJob(ctx, uploadURL, languageCode(recognitionTag))
	if err != nil {
		return "", err
	}

	return c.poll(ctx, id)
}

func (c *AssemblyAIClient) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var ur uploadResponse
	if err := c.do(req, &ur); err != nil {
		return "", err
	}
	if ur.UploadURL == "" {
		return "", fmt.Errorf("assemblyai: empty upload url: %w", chat.ErrTranscriptionUnavailable)
	}
	return ur.UploadURL, nil
}

func (c *AssemblyAIClient) createJob(ctx context.Context, audioURL, langCode string) (string, error) {
	body, _ := json.Marshal(transcriptRequest{AudioURL: audioURL, LanguageCode: langCode})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var tr transcriptResponse
	if err := c.do(req, &tr); err != nil {
		return "", err
	}
	if tr.ID == "" {
		return "", fmt.Errorf("assemblyai: job id missing: %w", chat.ErrTranscriptionUnavailable)
	}
	return tr.ID, nil
}

func (c *AssemblyAIClient) poll(ctx context.Context, id string) (string, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("assemblyai: %v: %w", ctx.Err(), chat.ErrTranscriptionUnavailable)
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/transcript/"+id, nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("Authorization", c.APIKey)

			var tr transcriptResponse
			if err := c.do(req, &tr); err != nil {
				return "", err
			}
			switch tr.Status {
			case "completed":
				text := strings.TrimSpace(tr.Text)
				if text == "" {
					return chat.UnclearAudioSentinel, nil
				}
				return text, nil
			case "error":
				return "", fmt.Errorf("assemblyai: %s: %w", tr.Error, chat.ErrTranscriptionUnclear)
			}
			// queued / processing: keep polling
		}
	}
}

func (c *AssemblyAIClient) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("assemblyai: %v: %w", err, chat.ErrTranscriptionUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("assemblyai: status=%d body=%s: %w", resp.StatusCode, string(b), chat.ErrTranscriptionUnavailable)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// languageCode maps a BCP-47 recognition tag to AssemblyAI's language codes.
func languageCode(tag string) string {
	switch tag {
	case "en-US":
		return "en_us"
	case "es-ES":
		return "es"
	case "fr-FR":
		return "fr"
	case "zh-CN":
		return "zh"
	case "ja-JP":
		return "ja"
	}
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
