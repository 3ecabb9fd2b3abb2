package api

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/NoaBot/internal/telegram"
	"github.com/BTreeMap/NoaBot/internal/twiliowhatsapp"
)

// secretHeader carries the token registered with setWebhook.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// emptyTwiML acknowledges a Twilio webhook without replying inline.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// rootHandler is the static liveness endpoint.
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, LivenessBody)
}

// healthHandler reports process health as JSON.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, APIResponse{
		Status: "ok",
		Result: map[string]interface{}{
			"status":         "healthy",
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
			"uptime_seconds": int64(time.Since(s.started).Seconds()),
			"twilio_enabled": s.cfg.Twilio != nil,
		},
	})
}

// telegramWebhookHandler processes one Telegram update. Any parsed update is
// acknowledged with 200 so Telegram does not redeliver it.
func (s *Server) telegramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
			slog.Warn("Server.telegramWebhookHandler: secret token mismatch")
			writeText(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("Server.telegramWebhookHandler: failed to read body", "error", err)
	}
	msg, ok := telegram.ParseUpdate(body).Inbound()
	if !ok {
		writeText(w, http.StatusOK, "no chat")
		return
	}

	// Replies must still be delivered if Telegram drops the connection.
	ctx := context.WithoutCancel(r.Context())
	res := s.processor.Process(ctx, s.telegram, msg)
	slog.Debug("Server.telegramWebhookHandler: update processed", "chat_id", msg.ChatID, "route", res.Route, "outcome", res.Outcome)
	writeText(w, http.StatusOK, "ok")
}

// twilioWebhookHandler processes one inbound WhatsApp message posted by Twilio.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: invalid form", "error", err)
		writeText(w, http.StatusBadRequest, "invalid form")
		return
	}

	if v := s.cfg.TwilioValidator; v != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !v.Validate(s.requestURL(r), params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("Server.twilioWebhookHandler: signature validation failed")
			writeText(w, http.StatusForbidden, "invalid signature")
			return
		}
	}

	msg, ok := twiliowhatsapp.Inbound(r.PostForm.Get("From"), r.PostForm.Get("Body"), r.PostForm.Get("ProfileName"))
	if ok {
		res := s.processor.Process(context.WithoutCancel(r.Context()), s.cfg.Twilio, msg)
		slog.Debug("Server.twilioWebhookHandler: message processed", "chat_id", msg.ChatID, "route", res.Route, "outcome", res.Outcome)
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, emptyTwiML); err != nil {
		slog.Error("Server.twilioWebhookHandler: failed to write response", "error", err)
	}
}

// requestURL reconstructs the URL Twilio signed.
func (s *Server) requestURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") == "" {
		scheme = "http"
	} else if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
