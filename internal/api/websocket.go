package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// SocketRequest is a client frame on /chat/ws.
type SocketRequest struct {
	ClientRequest string `json:"clientRequest"`
}

// SocketResponse is a server frame on /chat/ws. Exactly one field is set.
type SocketResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	// Browser clients are served from other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleChatSocket serves a chat session over a websocket. The client is
// fixed for the connection by the clientUUID query parameter; each text
// frame is one request and gets one response frame.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientUUID")
	if clientID == "" {
		s.errorResponse(w, http.StatusBadRequest, MissingFieldError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(1024 * 1024)

	log := s.logger.With("client_id", clientID)
	log.Info("chat socket opened")

	for {
		var req SocketRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !isDecodeError(err) {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Info("chat socket closed")
				} else {
					log.Debug("chat socket ended", "error", err)
				}
				return
			}
			log.Debug("bad chat frame", "error", err)
			if werr := conn.WriteJSON(SocketResponse{Error: MissingFieldError}); werr != nil {
				return
			}
			continue
		}

		if strings.TrimSpace(req.ClientRequest) == "" {
			if err := conn.WriteJSON(SocketResponse{Error: MissingFieldError}); err != nil {
				return
			}
			continue
		}

		answer := s.ask(r.Context(), clientID, req.ClientRequest)
		if err := conn.WriteJSON(SocketResponse{Message: FormatAnswer(answer)}); err != nil {
			log.Debug("chat socket write failed", "error", err)
			return
		}
	}
}

// isDecodeError reports whether err came from decoding a frame rather
// than from the connection.
func isDecodeError(err error) bool {
	var syntax *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syntax) || errors.As(err, &typ)
}
