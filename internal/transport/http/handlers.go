// Package http holds the REST handlers served next to the signaling socket.
package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Registry *app.Registry
	ICE      []webrtc.ICEServer
}

func NewHandlers(reg *app.Registry, ice []webrtc.ICEServer) *Handlers {
	return &Handlers{Registry: reg, ICE: ice}
}

// Register mounts the handlers on g.
func (h *Handlers) Register(g *gin.RouterGroup) {
	g.GET("/ice", h.iceServers)
	g.GET("/rooms", h.listRooms)
	g.GET("/rooms/:id/members", h.roomMembers)
	g.DELETE("/connections/:id", h.kick)
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.Registry.Count()})
}

func (h *Handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.ICE})
}

func (h *Handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Registry.Rooms().List()})
}

func (h *Handlers) roomMembers(c *gin.Context) {
	room, err := domain.NewRoomID(c.Param("id"))
	if errors.Is(err, domain.ErrReservedRoomID) {
		// Meeting and self rooms are listed by listRooms, so they can be inspected too.
		room, err = domain.RoomID(c.Param("id")), nil
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members := h.Registry.Rooms().MembersOf(room)
	c.JSON(http.StatusOK, gin.H{"room": room, "members": members, "client_count": len(members)})
}

// kick closes a connection; the usual disconnect path does the cleanup.
func (h *Handlers) kick(c *gin.Context) {
	id := core.ConnID(c.Param("id"))
	if !h.Registry.Kick(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": app.ErrConnNotFound.Error()})
		return
	}
	log.Info().Str("module", "transport.http").Str("conn", string(id)).Str("ip", c.ClientIP()).Msg("admin kick")
	c.Status(http.StatusNoContent)
}
