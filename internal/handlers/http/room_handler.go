package http

import (
	"context"
	"net/http"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
	"github.com/MeNameek/camerasystem/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CodeIssuer hands out room codes that are free across relay instances.
type CodeIssuer interface {
	FreshCode(ctx context.Context) (domain.RoomCode, error)
}

// Rooms is the read side of the local room registry.
type Rooms interface {
	MembersOf(code domain.RoomCode) []domain.Participant
	Stats() (rooms, participants int)
}

type RoomHandler struct {
	codes       CodeIssuer
	rooms       Rooms
	directory   ports.RoomDirectory
	mirror      ports.PresenceMirror
	connections func() int
	logger      *zap.SugaredLogger
}

// NewRoomHandler builds the REST surface. directory, mirror and connections
// may be nil.
func NewRoomHandler(
	codes CodeIssuer,
	rooms Rooms,
	directory ports.RoomDirectory,
	mirror ports.PresenceMirror,
	connections func() int,
	logger *zap.SugaredLogger,
) *RoomHandler {
	return &RoomHandler{
		codes:       codes,
		rooms:       rooms,
		directory:   directory,
		mirror:      mirror,
		connections: connections,
		logger:      logger,
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/rooms", h.CreateRoomCode)
		api.GET("/rooms/:code", h.GetRoom)
		api.GET("/stats", h.GetStats)
	}
}

type roomResponse struct {
	Code    domain.RoomCode      `json:"code"`
	Members []domain.Participant `json:"members"`
	Sources int                  `json:"sources"`
	Local   bool                 `json:"local"`
}

// CreateRoomCode reserves a code for a viewer to create the room with. The
// room itself only exists once the viewer sends create on the signaling
// socket.
func (h *RoomHandler) CreateRoomCode(c *gin.Context) {
	code, err := h.codes.FreshCode(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Debugw("room code issued", "room", code)
	c.JSON(http.StatusCreated, gin.H{"code": code})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := domain.NormalizeRoomCode(c.Param("code"))
	if err := validation.ValidateRoomCode(code, 0, ""); err != nil {
		_ = c.Error(err)
		return
	}

	if members := h.rooms.MembersOf(code); len(members) > 0 {
		c.JSON(http.StatusOK, newRoomResponse(code, members, true))
		return
	}

	if h.directory != nil {
		if members, ok := h.directory.Members(code); ok && len(members) > 0 {
			c.JSON(http.StatusOK, newRoomResponse(code, members, false))
			return
		}
	}

	if h.mirror != nil {
		members, ok, err := h.mirror.Members(c.Request.Context(), code)
		if err != nil {
			h.logger.Warnw("presence lookup failed", "room", code, "error", err)
		} else if ok && len(members) > 0 {
			c.JSON(http.StatusOK, newRoomResponse(code, members, false))
			return
		}
	}

	_ = c.Error(domain.ErrRoomNotFound)
}

func (h *RoomHandler) GetStats(c *gin.Context) {
	rooms, participants := h.rooms.Stats()
	stats := gin.H{
		"rooms":        rooms,
		"participants": participants,
	}
	if h.connections != nil {
		stats["connections"] = h.connections()
	}
	c.JSON(http.StatusOK, stats)
}

func newRoomResponse(code domain.RoomCode, members []domain.Participant, local bool) roomResponse {
	return roomResponse{
		Code:    code,
		Members: members,
		Sources: len(domain.SourceIDs(members)),
		Local:   local,
	}
}
