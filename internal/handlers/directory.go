package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messaging-service/internal/apperr"
	"messaging-service/internal/directory"
)

// CacheInvalidator drops cached directory entries.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, kind directory.Kind, id string) error
}

// DirectoryHandler lets the owning services evict renamed jobs and users.
type DirectoryHandler struct {
	cache  CacheInvalidator
	logger zerolog.Logger
}

func NewDirectoryHandler(cache CacheInvalidator, logger zerolog.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		cache:  cache,
		logger: logger.With().Str("component", "directory_handler").Logger(),
	}
}

// Invalidate handles DELETE /internal/directory/:kind/:id.
func (h *DirectoryHandler) Invalidate(c *gin.Context) {
	kind := directory.Kind(c.Param("kind"))
	if kind != directory.KindJob && kind != directory.KindUser {
		respondError(c, h.logger, apperr.Validation("kind must be job or user"))
		return
	}
	id := c.Param("id")
	if err := h.cache.Invalidate(c.Request.Context(), kind, id); err != nil {
		respondError(c, h.logger, apperr.Transient("directory cache unavailable", err))
		return
	}
	h.logger.Info().Str("kind", string(kind)).Str("id", id).Msg("directory entry invalidated")
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}
