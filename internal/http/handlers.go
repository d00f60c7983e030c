package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"finsight/internal/amqp"
	"finsight/internal/log"
)

const maxEventBody = 4 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready.Ping(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, messageResponse{Success: false, Message: "not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "ready"})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, messageResponse{Success: false, Message: "rate limit exceeded, try again later"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	n := s.deps.Generator.GenerateForUser(r.Context(), userID)
	s.invalidate(userID)

	msg := "No new notifications to generate"
	if n > 0 {
		msg = fmt.Sprintf("Generated %d new notifications", n)
	}
	writeJSON(w, http.StatusOK, countResponse{Success: true, Message: msg, Count: int64(n)})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())

	unreadOnly := false
	if v := strings.TrimSpace(r.URL.Query().Get("unreadOnly")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, messageResponse{Success: false, Message: "unreadOnly must be true or false"})
			return
		}
		unreadOnly = b
	}

	key := listingKey(userID, unreadOnly)
	if s.listings != nil {
		if cached, ok := s.listings.Get(key); ok {
			writeJSON(w, http.StatusOK, listResponse{Success: true, Notifications: cached})
			return
		}
	}

	insights, err := s.deps.ReadState.List(r.Context(), userID, unreadOnly)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := toNotifications(insights)
	if s.listings != nil {
		s.listings.Set(key, out)
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Notifications: out})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, messageResponse{Success: false, Message: "invalid notification id"})
		return
	}

	if err := s.deps.ReadState.MarkRead(r.Context(), userID, id); err != nil {
		writeError(w, r, log.OpMarkRead, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Notification marked as read"})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	n, err := s.deps.ReadState.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, r, log.OpReadAll, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusOK, countResponse{Success: true, Message: "All notifications marked as read", Count: n})
}

type transactionEvent struct {
	TransactionID int64                  `json:"transaction_id"`
	Action        amqp.TransactionAction `json:"action"`
}

// handleTransactionEvent accepts a ledger mutation notice and triggers a
// background pass. It never waits for generation.
func (s *Server) handleTransactionEvent(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())

	var body transactionEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Success: false, Message: "invalid event body"})
		return
	}
	msg := amqp.NewTransactionChangedMessage(userID, body.TransactionID, body.Action)
	if err := msg.Validate(); err != nil {
		writeError(w, r, log.OpPublish, err)
		return
	}

	if err := s.route(r, msg); err != nil {
		s.logger.ErrorContext(r.Context(), "Transaction event not accepted",
			log.FieldError, err,
			log.FieldEventID, msg.EventID,
			log.FieldUserID, userID)
		writeJSON(w, http.StatusServiceUnavailable, messageResponse{Success: false, Message: "event pipeline unavailable"})
		return
	}
	writeJSON(w, http.StatusAccepted, eventResponse{Success: true, EventID: msg.EventID})
}

var errNoEventSink = errors.New("no event sink configured")

// route publishes to the broker when configured, falling back to the
// in-process dispatcher if publishing fails.
func (s *Server) route(r *http.Request, msg *amqp.TransactionChangedMessage) error {
	var pubErr error
	if s.deps.Events != nil {
		if pubErr = s.deps.Events.PublishTransactionChanged(r.Context(), msg); pubErr == nil {
			return nil
		}
		s.logger.WarnContext(r.Context(), "Publish failed, dispatching in-process",
			log.FieldError, pubErr,
			log.FieldEventID, msg.EventID)
	}
	if s.deps.Dispatch != nil {
		if s.deps.Dispatch.Submit(msg.UserID) {
			return nil
		}
		return errors.Join(pubErr, errors.New("dispatcher stopped"))
	}
	if pubErr != nil {
		return pubErr
	}
	return errNoEventSink
}

func listingKey(userID int64, unreadOnly bool) string {
	return fmt.Sprintf("user:%d:%t", userID, unreadOnly)
}

func (s *Server) invalidate(userID int64) {
	if s.listings != nil {
		s.listings.DeletePrefix(fmt.Sprintf("user:%d:", userID))
	}
}
