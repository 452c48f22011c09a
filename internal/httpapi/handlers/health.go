package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minchat/minchat/internal/common"
)

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz is ready iff the persistence gateway answers a trivial probe.
func (h *Handler) Readyz(c *gin.Context) {
	if err := h.Svc.Ping(c.Request.Context()); err != nil {
		common.Fail(c, http.StatusInternalServerError, "not_ready", "database unreachable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
