package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"reliefdesk/internal/pkg/jwt"
	"reliefdesk/internal/pkg/response"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxMsgSize  = 4 * 1024
	closeGrace  = time.Second
	defaultAuth = 10 * time.Second
)

type TokenVerifier interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

type HandlerConfig struct {
	HandshakeTimeout time.Duration
	SendBuffer       int
	AllowedOrigins   []string
}

// Handler serves GET /ws/notifications.
type Handler struct {
	registry *Registry
	verifier TokenVerifier
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewHandler(registry *Registry, verifier TokenVerifier, cfg HandlerConfig, log logrus.FieldLogger) *Handler {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultAuth
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	h := &Handler{
		registry: registry,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws/notifications", h.ServeWS)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// tokenFromRequest reads ?token= first, then a bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// ServeWS authenticates, upgrades and runs the session until disconnect.
//
// A token in the URL or header is checked before the upgrade and a bad one is
// answered with 401. Without one, the first frame must be an auth message
// arriving within the handshake timeout.
func (h *Handler) ServeWS(c *gin.Context) {
	s := NewSession(h.cfg.SendBuffer)
	log := h.log.WithField("session_id", s.ID)

	if token := tokenFromRequest(c.Request); token != "" {
		claims, err := h.verifier.ValidateToken(token)
		if err != nil {
			_ = s.Reject()
			log.WithError(err).Debug("websocket handshake rejected")
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		_ = s.Authenticate(claims.UserID, claims.Role)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		if s.State() == StateAuthenticated {
			_ = s.Disconnect()
		} else {
			_ = s.Reject()
		}
		return
	}
	defer conn.Close()

	if s.State() == StateConnecting {
		if !h.frameHandshake(conn, s, log) {
			return
		}
	}

	if err := s.Activate(); err != nil {
		log.WithError(err).Error("activate session")
		return
	}
	h.registry.Register(s)
	log = log.WithField("user_id", s.UserID)
	log.Info("websocket session active")

	defer func() {
		h.registry.Unregister(s)
		_ = s.Disconnect()
		log.Info("websocket session closed")
	}()

	h.enqueue(s, NewReadyEvent(s.ID, s.UserID))

	go h.writePump(conn, s)
	h.readPump(conn, s, log)
}

func (h *Handler) frameHandshake(conn *websocket.Conn, s *Session, log logrus.FieldLogger) bool {
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))

	reject := func(code, message string) bool {
		_ = s.Reject()
		log.WithField("code", code).Info("websocket handshake rejected")
		h.writeDirect(conn, NewErrorEvent(code, message))
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code),
			time.Now().Add(closeGrace),
		)
		return false
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return reject("AUTH_TIMEOUT", "Authentication frame not received in time")
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != MessageAuth || msg.Token == "" {
		return reject("AUTH_REQUIRED", "First message must be an auth message")
	}

	claims, err := h.verifier.ValidateToken(msg.Token)
	if err != nil {
		return reject("INVALID_TOKEN", "Invalid or expired token")
	}
	if err := s.Authenticate(claims.UserID, claims.Role); err != nil {
		return reject("INVALID_STATE", err.Error())
	}
	return true
}

func (h *Handler) writeDirect(conn *websocket.Conn, ev Event) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(ev)
}

func (h *Handler) enqueue(s *Session, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.Enqueue(data)
}

func (h *Handler) readPump(conn *websocket.Conn, s *Session, log logrus.FieldLogger) {
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.enqueue(s, NewErrorEvent("INVALID_JSON", "Failed to parse message"))
			continue
		}

		switch msg.Type {
		case MessagePing:
			h.enqueue(s, NewPongEvent())
		case MessageAuth:
			h.enqueue(s, NewErrorEvent("ALREADY_AUTHENTICATED", "Session is already authenticated"))
		default:
			h.enqueue(s, NewErrorEvent("UNKNOWN_TYPE", "Unknown message type: "+msg.Type))
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(closeGrace),
			)
			return
		}
	}
}
