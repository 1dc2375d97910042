package main

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edibez/tokenagent/internal/chat"
	"github.com/edibez/tokenagent/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsTypeMessage = "message"
	wsTypeReply   = "reply"
	wsTypeError   = "error"

	wsWriteWait       = 10 * time.Second
	wsDefaultPongWait = 60 * time.Second
	wsMaxFrame        = 8 << 10
)

// upgrader accepts same-host origins, plus any listed in s.wsOrigins.
func (s *server) upgrader() *websocket.Upgrader {
	u := &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(s.wsOrigins) == 0 {
		// gorilla's default same-origin check
		return u
	}
	allowed := make(map[string]bool, len(s.wsOrigins))
	for _, o := range s.wsOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed[origin] {
			return true
		}
		o, err := url.Parse(origin)
		return err == nil && strings.EqualFold(o.Host, r.Host)
	}
	return u
}

// handleWebSocket runs a chat over one connection. The session lives as
// long as the connection; every message frame gets exactly one reply frame.
// A peer that stops answering pings is dropped after the pong wait.
func (s *server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		requestLogger(c).Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	pongWait := s.wsPongWait
	if pongWait <= 0 {
		pongWait = wsDefaultPongWait
	}
	conn.SetReadLimit(wsMaxFrame)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, pongWait*9/10, done)

	log := requestLogger(c)
	log.Debug("websocket connected")
	ctx := c.Request.Context()
	session := chat.NewSession(nil)

	for {
		var in types.WSMessage
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		out := types.WSMessage{Type: wsTypeReply}
		if in.Type != wsTypeMessage || strings.TrimSpace(in.Content) == "" {
			out = types.WSMessage{Type: wsTypeError, Content: "expected a message frame with content"}
		} else {
			session.AddUserMessage(in.Content)
			reply, err := s.agent.Run(ctx, session)
			if err != nil {
				log.Error("agent run failed", zap.Error(err))
				out = types.WSMessage{Type: wsTypeError, Content: "failed to reply"}
			} else {
				resp := toChatResponse(reply)
				out.Reply = &resp
			}
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(out); err != nil {
			log.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}

// keepAlive pings the peer until done is closed. WriteControl may run
// concurrently with the reply writer.
func keepAlive(conn *websocket.Conn, period time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
