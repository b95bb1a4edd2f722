package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"quizly-game-service/internal/app"
	"quizly-game-service/internal/auth"
	"quizly-game-service/internal/domain"

	"github.com/gorilla/websocket"
)

// TokenVerifier turns bearer credentials into a verified user id.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

type WSHandler struct {
	service  *app.QuizService
	verifier TokenVerifier
	baseCtx  context.Context
	log      *slog.Logger
	upgrader websocket.Upgrader
}

type HandlerOption func(*WSHandler)

// WithVerifier enables bearer token verification on upgrade.
func WithVerifier(v TokenVerifier) HandlerOption { return func(h *WSHandler) { h.verifier = v } }

// WithBaseContext sets the parent of every connection context; cancelling it aborts solo games
// and pending joins.
func WithBaseContext(ctx context.Context) HandlerOption {
	return func(h *WSHandler) { h.baseCtx = ctx }
}

func WithHandlerLogger(l *slog.Logger) HandlerOption { return func(h *WSHandler) { h.log = l } }

func NewWSHandler(service *app.QuizService, opts ...HandlerOption) *WSHandler {
	h := &WSHandler{
		service: service,
		baseCtx: context.Background(),
		log:     slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeWS upgrades HTTP requests to websockets and routes their events into the quiz engine.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		h.log.Info("rejected websocket upgrade", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}

	conn := newWSConn(ws, userID, h.log)
	conn.log.Debug("connected", "uid", userID)
	go conn.writePump()

	ctx, cancel := context.WithCancel(h.baseCtx)
	h.readLoop(ctx, conn)

	// cancel before Disconnect so a join still in flight detaches itself
	cancel()
	h.service.Disconnect(conn)
	conn.Close()
	conn.log.Debug("disconnected")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *wsConn) {
	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				conn.log.Warn("read error", "err", err)
			}
			return
		}

		var in envelope
		if err := json.Unmarshal(data, &in); err != nil {
			_ = conn.Send(domain.EventError, domain.ErrInvalidInput.Message)
			conn.Close()
			return
		}
		h.dispatch(ctx, conn, in)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *wsConn, in envelope) {
	switch in.Type {
	case domain.EventJoin:
		// solo games and room creators block in Join until their room closes
		go h.service.Join(ctx, conn, in.Payload)
	case domain.EventReady:
		h.service.Ready(conn)
	case domain.EventAnswer:
		h.service.Answer(conn, in.Payload)
	case domain.EventEnd:
		h.service.End(conn)
	default:
		conn.log.Debug("unsupported event", "type", in.Type)
	}
}

func (h *WSHandler) authenticate(r *http.Request) (string, error) {
	if h.verifier == nil {
		return "", nil
	}
	token, err := auth.TokenFromRequest(r)
	if errors.Is(err, auth.ErrNoToken) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return h.verifier.Verify(token)
}
