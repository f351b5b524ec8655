package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/registry"
	"github.com/weiawesome/wes-io-live/collab-service/internal/relay"
	"github.com/weiawesome/wes-io-live/collab-service/internal/service"
	"github.com/weiawesome/wes-io-live/collab-service/internal/slug"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/jwt"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/middleware"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/password"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/response"
)

const (
	ServiceName = "Collab Service API"
	Version     = "1.0.0"
)

// Handler handles HTTP requests for collab service.
type Handler struct {
	roomService    service.RoomService
	joinService    service.JoinService
	registry       registry.Registry
	relays         *relay.Manager
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler. reg may be nil, in which case
// session counts cover this instance only.
func NewHandler(roomService service.RoomService, joinService service.JoinService, reg registry.Registry, relays *relay.Manager, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		roomService:    roomService,
		joinService:    joinService,
		registry:       reg,
		relays:         relays,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Root)
	r.POST("/create-room", h.CreateRoom)

	room := r.Group("/room/:slug")
	{
		room.GET("", h.GetRoom)
		room.POST("/join", h.Join)

		// Protected routes
		room.GET("/me", h.authMiddleware.RequireAuth(), h.Me)
		room.GET("/sessions", h.authMiddleware.RequireAuth(), h.Sessions)
	}
}

func (h *Handler) Root(c *gin.Context) {
	response.Success(c, gin.H{
		"message": ServiceName,
		"version": Version,
	})
}

// CreateRoom creates a new room.
func (h *Handler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}

	created, err := h.roomService.CreateRoom(ctx, &req)
	if err != nil {
		l.Error().Err(err).Msg("failed to create room")
		response.InternalError(c, "failed to create room")
		return
	}

	response.Created(c, created)
}

// GetRoom returns the title and creation time of a room.
func (h *Handler) GetRoom(c *gin.Context) {
	roomSlug := c.Param("slug")
	ctx := log.WithRoom(c.Request.Context(), roomSlug)
	l := log.Ctx(ctx)

	if ok, _ := slug.Validate(roomSlug); !ok {
		response.NotFound(c, "room not found")
		return
	}

	room, err := h.roomService.GetRoom(ctx, roomSlug)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Msg("failed to get room")
		response.InternalError(c, "failed to get room")
		return
	}

	response.Success(c, room.ToInfoResponse())
}

// Join registers or authenticates a participant and returns a token.
func (h *Handler) Join(c *gin.Context) {
	roomSlug := c.Param("slug")
	ctx := log.WithRoom(c.Request.Context(), roomSlug)
	l := log.Ctx(ctx)

	if ok, _ := slug.Validate(roomSlug); !ok {
		response.NotFound(c, "room not found")
		return
	}

	var req domain.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind join request")
		response.BadRequest(c, err.Error())
		return
	}

	joined, err := h.joinService.Join(ctx, roomSlug, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			response.NotFound(c, "room not found")
		case errors.Is(err, service.ErrBadCredentials):
			response.Unauthorized(c, "invalid nickname or password")
		case errors.Is(err, password.ErrTooLong):
			response.BadRequest(c, "password must be at most 72 bytes")
		default:
			l.Error().Err(err).Msg("failed to join room")
			response.InternalError(c, "failed to join room")
		}
		return
	}

	c.Set(middleware.NicknameKey, joined.Nickname)
	response.Success(c, joined)
}

// Me describes the holder of the bearer token.
func (h *Handler) Me(c *gin.Context) {
	claims, ok := h.authorizeRoom(c)
	if !ok {
		return
	}

	response.Success(c, domain.MeResponse{
		RoomID:        claims.RoomID,
		RoomSlug:      c.Param("slug"),
		ParticipantID: claims.ParticipantID,
		Nickname:      claims.Nickname,
		ExpiresAt:     claims.ExpiresAtTime().UTC(),
	})
}

// Sessions reports the number of live relay sessions in the room.
func (h *Handler) Sessions(c *gin.Context) {
	roomSlug := c.Param("slug")
	ctx := log.WithRoom(c.Request.Context(), roomSlug)
	l := log.Ctx(ctx)

	if _, ok := h.authorizeRoom(c); !ok {
		return
	}

	active := h.relays.Active()
	if h.registry != nil {
		n, err := h.registry.Count(ctx, roomSlug)
		if err != nil {
			l.Error().Err(err).Msg("failed to count relay sessions")
			response.InternalError(c, "failed to count sessions")
			return
		}
		active = n
	}

	response.Success(c, domain.SessionsResponse{
		RoomSlug: roomSlug,
		Active:   active,
	})
}

// authorizeRoom resolves the slug and checks the verified token belongs to
// that room. It writes the error response itself.
func (h *Handler) authorizeRoom(c *gin.Context) (*jwt.Claims, bool) {
	roomSlug := c.Param("slug")
	ctx := log.WithRoom(c.Request.Context(), roomSlug)
	l := log.Ctx(ctx)

	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Unauthorized(c, "unauthorized")
		return nil, false
	}

	room, err := h.roomService.GetRoom(ctx, roomSlug)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return nil, false
		}
		l.Error().Err(err).Msg("failed to get room")
		response.InternalError(c, "failed to get room")
		return nil, false
	}

	if room.ID != claims.RoomID {
		response.Forbidden(c, "token not valid for this room")
		return nil, false
	}
	return claims, true
}
