package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/ride-pool/internal/notify"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	views, err := s.notify.List(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.logFailure(r, "fetch notifications failed", err)
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Server error fetching notifications"})
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, err := s.notify.MarkRead(r.Context(), id, userIDFromContext(r.Context()))
	switch {
	case errors.Is(err, notify.ErrNotificationNotFound):
		writeJSON(w, http.StatusNotFound, messageBody{Message: "Notification not found"})
	case err != nil:
		s.logFailure(r, "mark notification read failed", err, "notification_id", id)
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Server error marking notification as read"})
	default:
		writeJSON(w, http.StatusOK, n)
	}
}
