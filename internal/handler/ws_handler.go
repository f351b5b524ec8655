package handler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/collab-service/internal/audit"
	"github.com/weiawesome/wes-io-live/collab-service/internal/registry"
	"github.com/weiawesome/wes-io-live/collab-service/internal/relay"
	"github.com/weiawesome/wes-io-live/collab-service/internal/service"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/middleware"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/pubsub"
)

const bookkeepingTimeout = 5 * time.Second

// UpstreamDialer opens the collaboration server connection for a room.
type UpstreamDialer interface {
	Dial(ctx context.Context, roomSlug, token string) (*websocket.Conn, error)
	Target(roomSlug string) string
}

// WSHandler authenticates relay connections and bridges them upstream.
type WSHandler struct {
	upgrader  websocket.Upgrader
	tokens    middleware.TokenVerifier
	rooms     service.RoomService
	dialer    UpstreamDialer
	relays    *relay.Manager
	registry  registry.Registry
	publisher pubsub.Publisher
	cfg       relay.Config
}

// NewWSHandler creates the relay endpoint. reg and publisher may be nil.
func NewWSHandler(
	tokens middleware.TokenVerifier,
	rooms service.RoomService,
	dialer UpstreamDialer,
	relays *relay.Manager,
	reg registry.Registry,
	publisher pubsub.Publisher,
	cfg relay.Config,
	allowedOrigins []string,
) *WSHandler {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	return &WSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		tokens:    tokens,
		rooms:     rooms,
		dialer:    dialer,
		relays:    relays,
		registry:  reg,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:slug", h.HandleWebSocket)
}

// HandleWebSocket verifies the token, upgrades, and relays to the
// collaboration server. Rejections happen after the upgrade so the client
// receives a close code: 1008 for auth failures, 1011 for internal ones.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	roomSlug := c.Param("slug")
	token := c.Query("token")
	ctx := log.WithRoom(c.Request.Context(), roomSlug)
	l := log.Ctx(ctx)

	claims, verifyErr := h.tokens.Verify(token)

	client, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if verifyErr != nil {
		audit.LogWithDetail(ctx, audit.ActionRelayReject, verifyErr.Error(), "relay rejected")
		relay.CloseWith(client, websocket.ClosePolicyViolation, "invalid token", h.cfg.WriteWait)
		return
	}

	c.Set(middleware.RoomIDKey, claims.RoomID)
	c.Set(middleware.ParticipantIDKey, claims.ParticipantID)
	c.Set(middleware.NicknameKey, claims.Nickname)
	ctx = log.WithParticipant(ctx, claims.ParticipantID)
	l = log.Ctx(ctx)

	room, err := h.rooms.GetRoom(ctx, roomSlug)
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		audit.LogWithDetail(ctx, audit.ActionRelayReject, "unknown room", "relay rejected")
		relay.CloseWith(client, websocket.ClosePolicyViolation, "room not found", h.cfg.WriteWait)
		return
	case err != nil:
		l.Error().Err(err).Msg("failed to resolve room for relay")
		relay.CloseWith(client, websocket.CloseInternalServerErr, "internal error", h.cfg.WriteWait)
		return
	case room.ID != claims.RoomID:
		audit.LogWithDetail(ctx, audit.ActionRelayReject, "token for another room", "relay rejected")
		relay.CloseWith(client, websocket.ClosePolicyViolation, "token not valid for this room", h.cfg.WriteWait)
		return
	}

	sessionID, err := newSessionID()
	if err != nil {
		l.Error().Err(err).Msg("failed to allocate relay session id")
		relay.CloseWith(client, websocket.CloseInternalServerErr, "internal error", h.cfg.WriteWait)
		return
	}

	upstream, err := h.dialer.Dial(ctx, roomSlug, token)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUpstreamURL, h.dialer.Target(roomSlug)).Msg("failed to connect upstream")
		relay.CloseWith(client, websocket.CloseInternalServerErr, "upstream unavailable", h.cfg.WriteWait)
		return
	}

	session := relay.NewSession(sessionID, client, upstream, h.cfg)
	l = l.With().Str(log.FieldSessionID, session.ID).Logger()
	ctx = log.WithLogger(ctx, l)

	h.opened(ctx, roomSlug, session.ID, claims.RoomID, claims.ParticipantID, claims.Nickname)
	audit.Log(ctx, audit.ActionRelayOpen, "relay opened")

	start := time.Now()
	term, err := h.relays.Run(session)
	if errors.Is(err, relay.ErrShuttingDown) {
		term = relay.Termination{Side: relay.SideServer, Code: websocket.CloseGoingAway, Reason: "server shutting down"}
		relay.CloseWith(upstream, term.Code, term.Reason, h.cfg.WriteWait)
		relay.CloseWith(client, term.Code, term.Reason, h.cfg.WriteWait)
	}
	elapsed := time.Since(start)

	h.closed(ctx, roomSlug, session.ID, claims.ParticipantID, term, elapsed)

	var evt *zerolog.Event
	if term.Err != nil && term.Side != relay.SideServer {
		evt = l.Warn().Err(term.Err)
	} else {
		evt = l.Info()
	}
	evt.Str(log.FieldClosedBy, string(term.Side)).
		Int(log.FieldCloseCode, term.Code).
		Str(log.FieldCloseReason, term.Reason).
		Int64(log.FieldDuration, elapsed.Milliseconds()).
		Msg("relay closed")
	audit.LogWithDetail(ctx, audit.ActionRelayClose, string(term.Side), "relay closed")
}

func (h *WSHandler) opened(ctx context.Context, roomSlug, sessionID, roomID, participantID, nickname string) {
	l := log.Ctx(ctx)

	if h.registry != nil {
		if err := h.registry.Register(ctx, roomSlug, sessionID, participantID); err != nil {
			l.Warn().Err(err).Msg("failed to register relay session")
		}
	}

	h.publish(ctx, roomSlug, pubsub.EventRelayOpened, pubsub.RelayOpenedPayload{
		SessionID:     sessionID,
		RoomID:        roomID,
		ParticipantID: participantID,
		Nickname:      nickname,
	})
}

// closed runs after the client is gone, so it detaches from the request
// context.
func (h *WSHandler) closed(ctx context.Context, roomSlug, sessionID, participantID string, term relay.Termination, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	l := log.Ctx(ctx)

	if h.registry != nil {
		if err := h.registry.Deregister(ctx, roomSlug, sessionID); err != nil {
			l.Warn().Err(err).Msg("failed to deregister relay session")
		}
	}

	h.publish(ctx, roomSlug, pubsub.EventRelayClosed, pubsub.RelayClosedPayload{
		SessionID:     sessionID,
		ParticipantID: participantID,
		ClosedBy:      string(term.Side),
		CloseCode:     term.Code,
		Reason:        term.Reason,
		DurationMs:    elapsed.Milliseconds(),
	})
}

func (h *WSHandler) publish(ctx context.Context, roomSlug, eventType string, payload interface{}) {
	if h.publisher == nil {
		return
	}
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, roomSlug, payload)
	if err != nil {
		l.Warn().Err(err).Str("event", eventType).Msg("failed to build relay event")
		return
	}
	if err := h.publisher.Publish(ctx, pubsub.RelayChannel(roomSlug), event); err != nil {
		l.Warn().Err(err).Str("event", eventType).Msg("failed to publish relay event")
	}
}

// checkOrigin allows every origin when the list is empty or contains "*".
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
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

// newSessionID returns a ULID so registry keys and events sort by open time.
func newSessionID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	return id.String(), nil
}
