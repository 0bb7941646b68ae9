package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/tarhbox/backend/internal/middleware"
	"github.com/tarhbox/backend/internal/storage"
	"github.com/tarhbox/backend/pkg/logger"
	"github.com/tarhbox/backend/pkg/utils"
)

type FilesHandler struct {
	Storage storage.Storage
}

func NewFilesHandler(store storage.Storage) *FilesHandler {
	return &FilesHandler{Storage: store}
}

// Serve streams a stored object back to an authenticated caller. The
// wildcard path is the logical storage key; anything that would resolve
// outside the storage root reads as missing.
func (h *FilesHandler) Serve(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	raw := c.Params("*")
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}

	key := strings.TrimPrefix(decoded, "/")
	if !storage.ValidKey(key) {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	object, info, err := h.Storage.Open(c.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		logger.ErrorWithUser(currentUser.ID.String(), "file_serve_failed", err, map[string]interface{}{
			"key": key,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	c.Set("Content-Type", contentTypeByExtension(key))
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	return c.SendStream(object, int(info.Size))
}

func contentTypeByExtension(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
