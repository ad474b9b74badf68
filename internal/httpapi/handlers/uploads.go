package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bravohq/dispatch/internal/common"
	"github.com/bravohq/dispatch/internal/httpapi/middleware"
)

// GetUpload serves a stored file to its owning session. Files outside
// the requester's session are reported as not found, never forbidden.
func (h *Handler) GetUpload(c *gin.Context) {
	sid, ok := c.Get(middleware.SessionIDKey)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "session token required")
		return
	}
	sessionID, _ := sid.(string)

	filename := c.Param("filename")
	f, err := h.Uploads.GetByFilename(c.Request.Context(), sessionID, filename)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40403, "file not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if f.FileType != "" {
		c.Header("Content-Type", f.FileType)
	}
	c.FileAttachment(h.Store.Path(f.Filename), f.OriginalFilename)
}
