package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
)

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type countResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

type listResponse struct {
	Success       bool               `json:"success"`
	Notifications []notificationJSON `json:"notifications"`
}

type eventResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id"`
}

type notificationJSON struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toNotifications(in []core.Insight) []notificationJSON {
	out := make([]notificationJSON, 0, len(in))
	for _, i := range in {
		out = append(out, notificationJSON{
			ID:        i.ID,
			UserID:    i.UserID,
			Message:   i.Message,
			Type:      string(i.Severity),
			IsRead:    i.Read,
			CreatedAt: i.CreatedAt.UTC(),
			UpdatedAt: i.UpdatedAt.UTC(),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps engine error kinds to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides internal failure details from the client; they are logged instead.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)).
			LogError(r.Context(), "Request failed", err, op, log.NewFields().WithUser(userFrom(r.Context())))
		msg = "internal error"
	}
	writeJSON(w, status, messageResponse{Success: false, Message: msg})
}
