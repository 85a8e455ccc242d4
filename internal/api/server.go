// Package api serves the gateway's HTTP surface: status, pairing code,
// outbound sends, the admin console and a live status stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/KafClaw/wagateway/internal/channels"
	"github.com/KafClaw/wagateway/internal/session"
	webassets "github.com/KafClaw/wagateway/web"
)

// Sender delivers an outbound text message.
type Sender interface {
	SendMessage(ctx context.Context, destination, body string) error
}

// SendRecorder audits API-initiated sends.
type SendRecorder interface {
	RecordSend(ctx context.Context, destination, body string, err error)
}

// Options configures a Server. Auth is required.
type Options struct {
	Auth        *AuthGate
	Recorder    SendRecorder
	SendTimeout time.Duration
	Log         *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	tracker     *session.Tracker
	sender      Sender
	auth        *AuthGate
	recorder    SendRecorder
	sendTimeout time.Duration
	log         *zap.Logger
	upgrader    websocket.Upgrader
}

func NewServer(tracker *session.Tracker, sender Sender, opts Options) *Server {
	s := &Server{
		tracker:     tracker,
		sender:      sender,
		auth:        opts.Auth,
		recorder:    opts.Recorder,
		sendTimeout: opts.SendTimeout,
		log:         opts.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("api")
	if s.sendTimeout <= 0 {
		s.sendTimeout = 30 * time.Second
	}
	return s
}

// Routes wires the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/status", s.handleStatus)
		r.Get("/qr", s.handleQR)
		r.Get("/qr.png", s.handleQRPNG)
		r.Post("/send", s.handleSend)
		r.Get("/admin", s.handleAdmin)
		r.Post("/logout", s.handleLogout)
		r.Get("/ws", s.handleWS)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": s.tracker.Status().String()})
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	code, ok := s.tracker.PairingCode()
	if !ok {
		respondError(w, http.StatusNotFound, "QR code not available")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"qrCode": code})
}

func (s *Server) handleQRPNG(w http.ResponseWriter, r *http.Request) {
	code, ok := s.tracker.PairingCode()
	if !ok {
		respondError(w, http.StatusNotFound, "QR code not available")
		return
	}
	png, err := channels.QRPNG(code, 320)
	if err != nil {
		s.log.Error("failed to render QR code", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// textField accepts a JSON string or number; null decodes to "".
type textField string

func (f *textField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = textField(str)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.New("expected string or number")
		}
		*f = textField(n.String())
		return nil
	}
}

type sendRequest struct {
	Phone   textField `json:"phone"`
	Message textField `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.Message == "" {
		respondError(w, http.StatusBadRequest, "Phone number and message are required")
		return
	}

	if status := s.tracker.Status(); status != session.StatusReady {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":  "WhatsApp client not ready",
			"status": status.String(),
		})
		return
	}

	dest := channels.NormalizeDestination(string(req.Phone))
	ctx, cancel := context.WithTimeout(r.Context(), s.sendTimeout)
	defer cancel()

	err := s.sender.SendMessage(ctx, dest, string(req.Message))
	if s.recorder != nil {
		s.recorder.RecordSend(context.WithoutCancel(r.Context()), dest, string(req.Message), err)
	}
	if err != nil {
		s.log.Error("send failed", zap.String("to", dest), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to send message",
			"details": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Message sent successfully",
	})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	page, err := webassets.Files.ReadFile(webassets.AdminPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "admin page unavailable")
		return
	}
	if !s.auth.SessionValid(r) {
		s.auth.IssueSession(w, r)
	}
	servePage(w, page)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	page, err := webassets.Files.ReadFile(webassets.LoginPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "login page unavailable")
		return
	}
	servePage(w, page)
}

// handleLogin exchanges the API token for a session cookie. Form posts are
// redirected to the admin console.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var token string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		token = body.Token
	} else {
		token = r.PostFormValue("token")
	}
	if !s.auth.tokenMatches("Bearer " + token) {
		s.log.Warn("rejected admin login", zap.String("remote", r.RemoteAddr))
		respondError(w, http.StatusForbidden, "Unauthorized")
		return
	}
	s.auth.IssueSession(w, r)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.RevokeSession(r)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func servePage(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	_, _ = w.Write(page)
}
