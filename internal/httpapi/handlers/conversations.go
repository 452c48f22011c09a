package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/minchat/minchat/internal/chat"
)

func (h *Handler) CreateConversation(c *gin.Context) {
	conv, err := h.Svc.CreateConversation(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.Svc.ListConversations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	if err := h.Svc.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetConversationMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	cursor := c.Query("messagesCursor")

	conv, page, err := h.Svc.ConversationMessages(c.Request.Context(), c.Param("id"), cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	msgs := page.Messages
	if msgs == nil {
		msgs = []chat.Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       conv.ID,
		"title":    conv.Title,
		"messages": msgs,
		"pageInfo": gin.H{
			"prevCursor": page.PrevCursor,
			"nextCursor": page.NextCursor,
		},
	})
}
