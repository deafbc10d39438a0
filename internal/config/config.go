package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	GeminiAPIKey  string
	GeminiModelID string

	AssemblyAIKey string

	// TTSProvider selects the networked synthesizer: "google", "deepgram" or "off".
	TTSProvider   string
	DeepgramKey   string
	DeepgramModel string

	// Preferred offline voice identifiers, first match wins.
	PreferredVoices []string

	SessionStore string
	RedisAddr    string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	ICEServersJSON string

	// Capture widget knobs.
	SilenceThreshold float64
	SilenceDuration  time.Duration

	// Delay before semi/fully automatic modes re-arm capture after a reply.
	ReplySettleDelay time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - replies will not work")
	}
	geminiModel := os.Getenv("GEMINI_MODEL_ID")
	if geminiModel == "" {
		geminiModel = "gemini-2.5-flash"
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - transcription will not work")
	}

	ttsProvider := strings.ToLower(os.Getenv("TTS_PROVIDER"))
	if ttsProvider == "" {
		ttsProvider = "google"
	}
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if ttsProvider == "deepgram" && deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - deepgram synthesis will not work")
	}

	var voices []string
	for _, v := range strings.Split(os.Getenv("PREFERRED_VOICES"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			voices = append(voices, v)
		}
	}

	store := os.Getenv("SESSION_STORE")
	if store == "" {
		store = "memory"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if store == "redis" && redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	ice := os.Getenv("ICE_SERVERS_JSON")
	if ice == "" {
		ice = `[{"urls":["stun:stun.l.google.com:19302"]}]`
	}

	cfg := Config{
		HTTPAddress:      addr,
		GeminiAPIKey:     geminiKey,
		GeminiModelID:    geminiModel,
		AssemblyAIKey:    assemblyAIKey,
		TTSProvider:      ttsProvider,
		DeepgramKey:      deepgramKey,
		DeepgramModel:    os.Getenv("DEEPGRAM_MODEL"),
		PreferredVoices:  voices,
		SessionStore:     store,
		RedisAddr:        redisAddr,
		SupabaseURL:      os.Getenv("SUPABASE_URL"),
		SupabaseKey:      os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:   envDefault("SUPABASE_BUCKET", "transcripts"),
		ICEServersJSON:   ice,
		SilenceThreshold: envFloat("CAPTURE_SILENCE_THRESHOLD", 0.02),
		SilenceDuration:  envDuration("CAPTURE_SILENCE_DURATION", 2*time.Second),
		ReplySettleDelay: envDuration("REPLY_SETTLE_DELAY", time.Second),
	}

	log.Printf("config: HTTP_ADDRESS=%s TTS_PROVIDER=%s SESSION_STORE=%s", cfg.HTTPAddress, cfg.TTSProvider, cfg.SessionStore)
	return cfg
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %v", key, v, def)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %v", key, v, def)
		return def
	}
	return d
}
