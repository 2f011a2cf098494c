package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"finbot/internal/bot"
	applog "finbot/internal/log"
)

const readinessTimeout = 5 * time.Second

type reportResponse struct {
	Sent int `json:"sent"`
}

// handleMessage accepts {"user_id", "text"} and answers {"reply"}.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg bot.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg.UserID = strings.TrimSpace(msg.UserID)
	if msg.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	writeJSON(w, http.StatusOK, s.messages.Handle(r.Context(), msg))
}

// handleDailyReport runs the daily report pass for every user now.
func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "daily reports are not configured")
		return
	}
	n, err := s.reports.Run(r.Context(), s.now())
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Daily report run failed",
			applog.FieldOperation, applog.OpReport,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "daily report failed")
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Sent: n})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady runs every readiness check and fails if any of them does.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.ready))
	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				checks[name] = "timeout"
			} else {
				checks[name] = "failed: " + err.Error()
			}
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	writeJSON(w, status, body)
}
