package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/minchat/minchat/internal/chat"
	"github.com/minchat/minchat/internal/common"
)

type sendMessageReq struct {
	Content string `json:"content"`
}

// SendMessage drives the send coordinator for one request. The liveness
// capability handed to the coordinator is the request context: gin cancels
// it the moment the client disconnects. An aborted send writes nothing back;
// the connection is already gone.
func (h *Handler) SendMessage(c *gin.Context) {
	conversationID := c.Param("id")

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "validation_error", "body must be a JSON object with a content field")
		return
	}

	if h.Locks != nil {
		acquired, err := h.Locks.AcquireSendLock(c.Request.Context(), conversationID, 30*time.Second)
		if err != nil {
			// lock store down: proceed unlocked rather than refuse sends
			h.Log.Warn("send lock unavailable", zap.Error(err))
		} else if !acquired {
			writeError(c, chat.ErrConflict)
			return
		} else {
			defer func() {
				rctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
				defer cancel()
				_ = h.Locks.ReleaseSendLock(rctx, conversationID)
			}()
		}
	}

	ctx := c.Request.Context()
	live := func() bool { return ctx.Err() == nil }

	userMsg, reply, err := h.Svc.Send(ctx, conversationID, req.Content, live)
	if err != nil {
		if errors.Is(err, chat.ErrAborted) {
			// no response on a dead connection, not even headers
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": userMsg,
		"reply":   reply,
	})
}

// SendMessageAsync queues the send for a worker and answers immediately
// with the job id.
func (h *Handler) SendMessageAsync(c *gin.Context) {
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, "async_disabled", "async sends are not configured")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "validation_error", "body must be a JSON object with a content field")
		return
	}

	job, err := h.Svc.EnqueueSend(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
		h.Log.Error("publish job failed", zap.String("jobId", job.ID), zap.Error(err))
		common.FailRetry(c, http.StatusServiceUnavailable, "queue_unavailable", "failed to enqueue send", 2000)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID})
}

func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.Svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}
