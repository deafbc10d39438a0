package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/agent"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/archive"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/capture"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/config"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/httpserver"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/llm"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/rtc"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/store"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/transcript"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	ctx := context.Background()

	completion, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	if err != nil {
		log.Fatalf("gemini client: %v", err)
	}

	transcriber := transcript.NewAssemblyAIClient(cfg.AssemblyAIKey)

	var synthesizer agent.Synthesizer
	switch cfg.TTSProvider {
	case "deepgram":
		synthesizer = tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel)
	case "off":
	default:
		synthesizer = tts.NewGoogleClient()
	}

	var speaker agent.Speaker
	var voice tts.Voice
	if len(cfg.PreferredVoices) > 0 {
		sp := tts.NewEspeakSpeaker()
		available, verr := sp.Voices(ctx)
		if verr != nil {
			log.Printf("offline voices unavailable: %v", verr)
		} else if voice, verr = tts.SelectVoice(available, cfg.PreferredVoices); verr != nil {
			log.Printf("no preferred voice matched: %v", verr)
		} else {
			speaker = sp
			log.Printf("offline voice: %s (%s)", voice.Name, voice.ID)
		}
	}

	var storeOpts []store.Option
	if cfg.SessionStore == "redis" {
		storeOpts = append(storeOpts, store.WithRedisClient(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})))
	}
	st, err := store.New(cfg.SessionStore, storeOpts...)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	defer st.Close()

	var archiver archive.Archiver
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		a, aerr := archive.New(archive.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if aerr != nil {
			log.Fatalf("supabase archiver: %v", aerr)
		}
		archiver = a
	}

	captureCfg := capture.DefaultConfig()
	captureCfg.SilenceThreshold = cfg.SilenceThreshold
	captureCfg.SilenceDuration = cfg.SilenceDuration

	// the WebRTC transport needs linear PCM replies, so it is offered
	// only when the Deepgram synthesizer is configured
	var rtcHandler *rtc.Handler
	if cfg.DeepgramKey != "" {
		rtcHandler = rtc.NewHandler(completion, transcriber, tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel)).
			WithICEServers(cfg.ICEServersJSON).
			WithCapture(captureCfg).
			WithSettleDelay(cfg.ReplySettleDelay)
	} else {
		log.Println("DEEPGRAM_API_KEY not set - WebRTC voice transport disabled")
	}

	srv := httpserver.New(httpserver.Options{
		Agent: agent.Options{
			Completion:  completion,
			Transcriber: transcriber,
			Synthesizer: synthesizer,
			Speaker:     speaker,
			Voice:       voice,
			SettleDelay: cfg.ReplySettleDelay,
		},
		Store:    st,
		Archiver: archiver,
		RTC:      rtcHandler,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
