package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/minchat/minchat/internal/ai"
	"github.com/minchat/minchat/internal/chat"
	"github.com/minchat/minchat/internal/common"
	"github.com/minchat/minchat/internal/store/rabbitmq"
	"github.com/minchat/minchat/internal/store/redisstore"
)

type Handler struct {
	Svc    *chat.Service
	Locks  *redisstore.Store   // nil disables send locking
	Rabbit *rabbitmq.Publisher // nil disables async sends
	Log    *zap.Logger
}

func NewHandler(svc *chat.Service, locks *redisstore.Store, rabbit *rabbitmq.Publisher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Svc: svc, Locks: locks, Rabbit: rabbit, Log: log}
}

// writeError maps the service taxonomy onto the wire. Retryable classes
// carry a client-side backoff hint.
func writeError(c *gin.Context, err error) {
	var (
		vErr  *chat.ValidationError
		sErr  *chat.StorageError
		aiErr *ai.Error
	)
	switch {
	case errors.Is(err, chat.ErrAborted):
		// the client is gone; write nothing to the dead connection
		c.Abort()
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, "not_found", "conversation not found")
	case errors.As(err, &vErr):
		common.Fail(c, http.StatusBadRequest, "validation_error", vErr.Reason)
	case errors.Is(err, chat.ErrConflict):
		common.Fail(c, http.StatusBadRequest, "conflict", "another send is in progress for this conversation")
	case errors.As(err, &sErr):
		common.FailRetry(c, http.StatusServiceUnavailable, "storage_unavailable", "storage is unavailable, try again later", 2000)
	case errors.As(err, &aiErr):
		switch aiErr.Kind {
		case ai.KindTimeout:
			common.FailRetry(c, http.StatusGatewayTimeout, "timeout", "completion provider timed out, try again later", 5000)
		case ai.KindUnavailable:
			common.FailRetry(c, http.StatusServiceUnavailable, "provider_unavailable", "completion provider is unreachable, try again later", 2000)
		case ai.KindUpstream:
			common.FailRetry(c, http.StatusInternalServerError, "upstream_error", "completion provider failed, try again later", 3000)
		default:
			common.Fail(c, http.StatusInternalServerError, "provider_error", "completion provider failed")
		}
	default:
		common.Fail(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}
