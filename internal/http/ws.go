package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/ride-pool/internal/auth"
	"github.com/example/ride-pool/internal/dispatch"
)

// handleWS opens the realtime channel. Browsers cannot set headers on a
// websocket handshake, so the token may also come in the query string.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	userID, err := s.verifier.Verify(token)
	if errors.Is(err, auth.ErrNoToken) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Msg: "No token, authorization denied"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Msg: "Token is not valid"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	sess := s.registry.Add(userID, conn)
	go s.readPump(userID, sess, conn)
}

// readPump drains client frames so close frames are processed, and drops the
// session once the peer goes away.
func (s *Server) readPump(userID string, sess *dispatch.Session, conn *websocket.Conn) {
	defer s.registry.Remove(userID, sess)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
