package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/elmchat/elm-chat/internal/config"
	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/internal/hub"
	"github.com/elmchat/elm-chat/internal/service"
	"github.com/elmchat/elm-chat/pkg/log"
	"github.com/elmchat/elm-chat/pkg/middleware"
)

// SocketPath is the WebSocket endpoint of the room.
const SocketPath = "/api/socket"

type WSHandler struct {
	hub          *hub.Hub
	service      service.ChatService
	validator    middleware.TokenValidator
	wsCfg        config.WebSocketConfig
	requireToken bool
	upgrader     websocket.Upgrader
}

// NewWSHandler creates the socket handler. validator may be nil when
// requireToken is false.
func NewWSHandler(
	h *hub.Hub,
	svc service.ChatService,
	validator middleware.TokenValidator,
	wsCfg config.WebSocketConfig,
	allowedOrigins []string,
	requireToken bool,
) *WSHandler {
	return &WSHandler{
		hub:          h,
		service:      svc,
		validator:    validator,
		wsCfg:        wsCfg,
		requireToken: requireToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	connID := ulid.Make().String()
	roomID := r.URL.Query().Get("roomId")

	l := log.Ctx(r.Context()).With().
		Str(log.FieldConnectionID, connID).
		Str(log.FieldRoomID, roomID).
		Logger()

	if h.requireToken {
		token, err := middleware.TokenFromRequest(r)
		if err != nil {
			l.Warn().Err(err).Msg("socket rejected: missing token")
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		claims, err := h.validator.ValidateToken(token)
		if err != nil {
			l.Warn().Err(err).Msg("socket rejected: invalid token")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		l = l.With().Str(log.FieldUserID, claims.UserID).Logger()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context ends when this handler returns.
	ctx := log.WithLogger(context.Background(), l)

	client := hub.NewClient(connID, roomID, h.hub, conn, h.wsCfg)
	if err := h.hub.Register(client); err != nil {
		l.Warn().Err(err).Msg("hub unavailable, closing connection")
		conn.Close()
		return
	}
	l.Info().Msg("socket connected")

	go client.WritePump()
	go client.ReadPump(
		func(c *hub.Client, message []byte) { h.handleMessage(ctx, c, message) },
		func(c *hub.Client) { h.handleClose(ctx, c) },
	)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	l := log.Ctx(ctx)

	event, err := domain.DecodeEvent(message)
	if err != nil {
		l.Warn().Err(err).Msg("invalid frame")
		h.sendError(ctx, client, domain.ErrCodeBadRequest, err.Error())
		return
	}

	if _, ok := event.(domain.PingEvent); ok {
		if err := client.SendBroadcast(domain.Pong{}); err != nil {
			l.Warn().Err(err).Msg("failed to send pong")
		}
		return
	}

	err = h.service.HandleEvent(ctx, client.Session, event)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNotJoined):
		h.sendError(ctx, client, domain.ErrCodeNotJoined, "join the room before sending messages")
	case errors.Is(err, service.ErrUserNotFound):
		h.sendError(ctx, client, domain.ErrCodeUserNotFound, "user not found")
	default:
		l.Error().Err(err).Msg("event handling failed")
		h.sendError(ctx, client, domain.ErrCodeInternalError, "internal error")
	}
}

func (h *WSHandler) handleClose(ctx context.Context, client *hub.Client) {
	l := log.Ctx(ctx)
	if err := h.service.HandleEvent(ctx, client.Session, domain.DisconnectEvent{}); err != nil {
		l.Error().Err(err).Msg("disconnect handling failed")
	}
	l.Info().
		Dur(log.FieldConnectedFor, time.Since(client.Session.ConnectedAt)).
		Dur(log.FieldIdleFor, time.Since(client.Session.LastActive())).
		Msg("socket disconnected")
}

func (h *WSHandler) sendError(ctx context.Context, client *hub.Client, code, message string) {
	if err := client.SendBroadcast(domain.NewErrorMessage(code, message)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to send error frame")
	}
}

// RegisterRoutes mounts the socket endpoint, wrapped by middlewares in
// order.
func (h *WSHandler) RegisterRoutes(router *mux.Router, middlewares ...mux.MiddlewareFunc) {
	var next http.Handler = http.HandlerFunc(h.HandleWebSocket)
	for i := len(middlewares) - 1; i >= 0; i-- {
		next = middlewares[i](next)
	}
	router.Handle(SocketPath, next).Methods(http.MethodGet)
}
