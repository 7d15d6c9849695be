package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/telemetry"
)

// RoomCounter reports live realtime connections for a user.
type RoomCounter interface {
	RoomSize(userID string) int
}

// RegisterDebugRoutes wires debug-only endpoints: an audit round trip and a
// per-user connection count.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, rooms RoomCounter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/rooms/:userId", func(c *gin.Context) {
		if rooms == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime hub not configured"})
			return
		}
		userID := c.Param("userId")
		c.JSON(http.StatusOK, gin.H{"userId": userID, "connections": rooms.RoomSize(userID)})
	})
}
