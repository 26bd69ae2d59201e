// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mealdrop/internal/modules/dispatch"
	"mealdrop/internal/modules/order"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNoRoute):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrPaymentFailed):
		writeError(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, order.ErrStaleTransition):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrNoCourierAvailable):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrCourierUnreachable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
