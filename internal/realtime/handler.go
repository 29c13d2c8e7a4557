package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskhive/service-booking/pkg/auth"
)

// joinWait is how long a new connection may stay anonymous.
const joinWait = 10 * time.Second

// frame is an inbound client message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinData struct {
	Token string `json:"token"`
}

type joinedData struct {
	UserID uuid.UUID `json:"userId"`
}

type errorData struct {
	Message string `json:"message"`
}

// Handler upgrades HTTP requests to websocket channels and joins them to the
// Hub once the client proves its identity.
type Handler struct {
	hub        *Hub
	jwtManager *auth.JWTManager
	bufferSize int
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewHandler creates a new websocket Handler.
func NewHandler(hub *Hub, jwtManager *auth.JWTManager, bufferSize int, logger *zap.Logger) *Handler {
	return &Handler{
		hub:        hub,
		jwtManager: jwtManager,
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Serve)
}

// Serve handles GET /ws. The first frame must be a join carrying a bearer
// token; anything else closes the connection.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	userID, err := h.awaitJoin(conn)
	if err != nil {
		h.reject(conn, err.Error())
		return
	}

	client := NewClient(conn, h.bufferSize, h.logger)
	joined, _ := NewEvent(EventJoined, joinedData{UserID: userID})
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(joined); err != nil {
		client.Close()
		return
	}

	h.hub.Register(userID, client)
	defer h.hub.Unregister(client)

	go client.writeLoop()
	client.readLoop()
}

func (h *Handler) awaitJoin(conn *websocket.Conn) (uuid.UUID, error) {
	_ = conn.SetReadDeadline(time.Now().Add(joinWait))

	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		return uuid.Nil, errJoinRequired
	}
	if f.Event != FrameJoin {
		return uuid.Nil, errJoinRequired
	}
	var data joinData
	if err := json.Unmarshal(f.Data, &data); err != nil || data.Token == "" {
		return uuid.Nil, errJoinRequired
	}
	claims, err := h.jwtManager.Verify(data.Token)
	if err != nil {
		return uuid.Nil, errInvalidToken
	}
	return claims.UserID, nil
}

func (h *Handler) reject(conn *websocket.Conn, reason string) {
	defer conn.Close()
	evt, _ := NewEvent(EventError, errorData{Message: reason})
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(evt); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
}

type joinError string

func (e joinError) Error() string { return string(e) }

const (
	errJoinRequired = joinError("first frame must be a join with a token")
	errInvalidToken = joinError("invalid or expired token")
)
