package ws

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"ChatApp/logger"
	"ChatApp/service/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server terminates websocket connections and feeds decoded client frames
// into the relay. Identity resolution happens during the handshake; no event
// is accepted for an unresolved connection.
type Server struct {
	relay    *relay.Relay
	resolver relay.IdentityResolver
}

func NewServer(r *relay.Relay, resolver relay.IdentityResolver) *Server {
	return &Server{relay: r, resolver: resolver}
}

// HandleWS is mounted at GET /ws?token=<jwt>.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}
	conn := newWsConn(ws)

	token := c.Query("token")
	if token == "" {
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
	}

	user, err := s.resolver.Resolve(c.Request.Context(), token)
	if err != nil {
		// Fatal to this connection attempt; the close code tells the
		// client not to retry with the same credentials.
		logger.Infof("[ws] identity resolution failed: %v", err)
		conn.Kick(relay.CloseAuthRequired, "authentication required")
		return
	}

	s.relay.Register(user, conn)
	logger.Infof("[ws] user=%s connected remote=%s", user.ID, ws.RemoteAddr())

	s.readLoop(user, ws, conn)

	s.relay.Disconnect(user, conn)
	conn.shutdown()
}

func (s *Server) readLoop(user relay.Identity, ws *websocket.Conn, conn *wsConn) {
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debugf("[ws] peer closed user=%s", user.ID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Debugf("[ws] read timeout user=%s", user.ID)
			} else {
				logger.Debugf("[ws] read error user=%s: %v", user.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var frame relay.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Debugf("[ws] bad frame user=%s len=%d: %v", user.ID, len(data), err)
			continue
		}
		if frame.ChatID == "" {
			continue
		}

		switch frame.Action {
		case relay.ActionJoinRoom:
			s.relay.Join(user, frame.ChatID)
		case relay.ActionLeaveRoom:
			s.relay.Leave(user, frame.ChatID)
		case relay.ActionSendMessage:
			s.relay.Send(user, frame.ChatID, frame.Content)
		case relay.ActionUserTyping:
			s.relay.Typing(user, frame.ChatID)
		default:
			logger.Debugf("[ws] unknown action=%q user=%s", frame.Action, user.ID)
		}
	}
}
