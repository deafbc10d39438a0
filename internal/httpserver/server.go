// Package httpserver exposes the assistant over HTTP: session lifecycle,
// typed and voice messages, persona/language/mode switches, transcript
// edits, reply speech, and the WebRTC signaling endpoints.
package httpserver

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/agent"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/archive"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/rtc"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/store"
)

// maxClipBytes bounds uploaded voice clips (about 60s of 16kHz PCM16).
const maxClipBytes = 4 << 20

// Options carries the server's collaborators. Archiver and RTC are
// optional; without them transcript archiving and the WebRTC transport
// are simply not offered.
type Options struct {
	Agent    agent.Options
	Store    store.Store
	Archiver archive.Archiver
	RTC      *rtc.Handler
}

// Server bundles the router and its dependencies.
type Server struct {
	Router http.Handler

	reg      *Registry
	archiver archive.Archiver
}

// New constructs the HTTP server with all routes registered.
func New(opts Options) *Server {
	s := &Server{
		reg:      NewRegistry(opts.Agent, opts.Store),
		archiver: opts.Archiver,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	api := e.Group("/api")
	api.POST("/sessions", s.createSession)
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id", s.getSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.POST("/sessions/:id/message", s.postMessage)
	api.POST("/sessions/:id/voice", s.postVoice)
	api.POST("/sessions/:id/personality", s.setPersonality)
	api.POST("/sessions/:id/language", s.setLanguage)
	api.POST("/sessions/:id/mode", s.setMode)
	api.POST("/sessions/:id/edit", s.resendEdit)
	api.DELETE("/sessions/:id/edit", s.discardEdit)
	api.DELETE("/sessions/:id/turns", s.clearTurns)
	api.GET("/sessions/:id/speech/:turn", s.speechForTurn)

	if opts.RTC != nil {
		e.POST("/rtc/offer", func(c echo.Context) error {
			var offer rtc.SessionDescription
			if err := c.Bind(&offer); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid offer")
			}
			answer, err := opts.RTC.HandleOffer(c.Request().Context(), offer)
			if err != nil {
				log.Printf("handle offer: %v", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "offer failed")
			}
			return c.JSON(http.StatusOK, answer)
		})
		e.GET("/rtc/ws", func(c echo.Context) error {
			opts.RTC.ServeWebSocket(c.Response(), c.Request())
			return nil
		})
	}

	s.Router = e
	return s
}

// sessionView is the JSON shape handlers return for session state.
type sessionView struct {
	ID             string           `json:"id"`
	State          agent.State      `json:"state"`
	Turns          []chat.Turn      `json:"turns"`
	Personality    string           `json:"personality"`
	Language       string           `json:"language"`
	CaptureMode    chat.CaptureMode `json:"capture_mode"`
	TurnCount      int              `json:"turn_count"`
	PendingEdit    *chat.PendingEdit `json:"pending_edit,omitempty"`
	PromptContinue bool             `json:"prompt_continue"`
}

func viewOf(ctrl *agent.Controller) sessionView {
	sess := ctrl.Session()
	return sessionView{
		ID:             sess.ID,
		State:          ctrl.State(),
		Turns:          sess.Turns,
		Personality:    sess.Personality.ID,
		Language:       sess.Language.ID,
		CaptureMode:    sess.CaptureMode,
		TurnCount:      sess.TurnCount,
		PendingEdit:    sess.Pending,
		PromptContinue: ctrl.ShouldPromptContinue(),
	}
}

// exchangeView pairs the exchange outcome with the refreshed session.
type exchangeView struct {
	Exchange *agent.Exchange `json:"exchange"`
	Session  sessionView     `json:"session"`
}

func (s *Server) createSession(c echo.Context) error {
	var body struct {
		Personality string           `json:"personality"`
		Language    string           `json:"language"`
		Mode        chat.CaptureMode `json:"mode"`
	}
	// body is optional; all fields default
	_ = c.Bind(&body)

	ctrl, err := s.reg.Create(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "create session failed")
	}
	if body.Personality != "" {
		if err := ctrl.SetPersonality(body.Personality); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if body.Language != "" {
		if err := ctrl.SetLanguage(body.Language); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	switch body.Mode {
	case chat.CaptureSemiAuto:
		ctrl.EnableConversationFlow(true)
	case chat.CaptureFullAuto:
		ctrl.EnableAutoCapture(true)
	}
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusCreated, viewOf(ctrl))
}

// sessionSummary is the listing shape; it omits the turn bodies.
type sessionSummary struct {
	ID          string           `json:"id"`
	Personality string           `json:"personality"`
	Language    string           `json:"language"`
	CaptureMode chat.CaptureMode `json:"capture_mode"`
	TurnCount   int              `json:"turn_count"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (s *Server) listSessions(c echo.Context) error {
	sessions, err := s.reg.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionSummary{
			ID:          sess.ID,
			Personality: sess.Personality.ID,
			Language:    sess.Language.ID,
			CaptureMode: sess.CaptureMode,
			TurnCount:   sess.TurnCount,
			UpdatedAt:   sess.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getSession(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewOf(ctrl))
}

func (s *Server) deleteSession(c echo.Context) error {
	if _, err := s.lookup(c); err != nil {
		return err
	}
	if err := s.reg.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) postMessage(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	ex, err := ctrl.SubmitText(c.Request().Context(), body.Text)
	if err != nil {
		return mapAgentError(err)
	}
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusOK, exchangeView{Exchange: ex, Session: viewOf(ctrl)})
}

func (s *Server) postVoice(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	audio, err := io.ReadAll(io.LimitReader(c.Request().Body, maxClipBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if len(audio) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty clip")
	}
	ex, err := ctrl.SubmitClip(c.Request().Context(), audio)
	if err != nil {
		return mapAgentError(err)
	}
	if ex == nil {
		// duplicate clip, suppressed
		return c.NoContent(http.StatusNoContent)
	}
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusOK, exchangeView{Exchange: ex, Session: viewOf(ctrl)})
}

func (s *Server) setPersonality(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := ctrl.SetPersonality(body.ID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusOK, viewOf(ctrl))
}

func (s *Server) setLanguage(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := ctrl.SetLanguage(body.ID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusOK, viewOf(ctrl))
}

func (s *Server) setMode(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	var body struct {
		Mode chat.CaptureMode `json:"mode"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	switch body.Mode {
	case chat.CaptureManual:
		ctrl.EnableConversationFlow(false)
		ctrl.EnableAutoCapture(false)
	case chat.CaptureSemiAuto:
		ctrl.EnableConversationFlow(true)
	case chat.CaptureFullAuto:
		ctrl.EnableAutoCapture(true)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown mode")
	}
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusOK, viewOf(ctrl))
}

func (s *Server) resendEdit(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	ex, err := ctrl.ResendEdit(c.Request().Context(), body.Text)
	if err != nil {
		return mapAgentError(err)
	}
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusOK, exchangeView{Exchange: ex, Session: viewOf(ctrl)})
}

func (s *Server) discardEdit(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	if err := ctrl.DiscardEdit(); err != nil {
		return mapAgentError(err)
	}
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusOK, viewOf(ctrl))
}

func (s *Server) clearTurns(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	if s.archiver != nil {
		if key, aerr := s.archiver.ArchiveSession(ctrl.Session()); aerr != nil {
			log.Printf("archive session: %v", aerr)
		} else if key != "" {
			log.Printf("archived transcript to %s", key)
		}
	}
	ctrl.ClearHistory()
	s.reg.persist(c.Request().Context(), ctrl)
	return c.JSON(http.StatusOK, viewOf(ctrl))
}

func (s *Server) speechForTurn(c echo.Context) error {
	ctrl, err := s.lookup(c)
	if err != nil {
		return err
	}
	turn, err := strconv.Atoi(c.Param("turn"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid turn index")
	}
	audio, truncated, err := ctrl.SpeechForTurn(c.Request().Context(), turn)
	if err != nil {
		if errors.Is(err, chat.ErrSynthesis) {
			return echo.NewHTTPError(http.StatusBadGateway, "synthesis failed")
		}
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	c.Response().Header().Set("X-Speech-Truncated", strconv.FormatBool(truncated))
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (s *Server) lookup(c echo.Context) (*agent.Controller, error) {
	ctrl, err := s.reg.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "unknown session")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "session lookup failed")
	}
	return ctrl, nil
}

func mapAgentError(err error) error {
	switch {
	case errors.Is(err, agent.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, "exchange already in progress")
	case errors.Is(err, agent.ErrNoPendingEdit):
		return echo.NewHTTPError(http.StatusConflict, "no pending edit")
	case errors.Is(err, chat.ErrCaptureEmpty):
		return echo.NewHTTPError(http.StatusBadRequest, "empty message")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
