package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"notification-dispatch/internal/errs"
)

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindNoValidRecipients:
		return http.StatusBadRequest
	case errs.KindTemplateNotFound, errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindTemplateInactive, errs.KindInvalidState:
		return http.StatusConflict
	case errs.KindTransportFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorBody(err error) gin.H {
	return gin.H{"success": false, "error": errs.KindOf(err), "message": errs.MessageOf(err)}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(errs.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, errorBody(err))
}

// failWith is fail with a data payload, e.g. the partial DispatchResult.
func (h *Handler) failWith(c *gin.Context, err error, data interface{}) {
	status := statusFor(errs.KindOf(err))
	body := errorBody(err)
	body["data"] = data
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, body)
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.logger.Warnf("Invalid request body for %s: %v", c.FullPath(), err)
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errs.KindValidation, "message": "Invalid request body"})
}
