package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case plerrors.IsNotFound(err):
		return http.StatusNotFound
	case plerrors.IsValidation(err):
		return http.StatusBadRequest
	case plerrors.IsConflict(err), plerrors.IsInvalidState(err):
		return http.StatusConflict
	case plerrors.IsSessionClosed(err):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(c.Request.Context()).Error("request failed", logging.Err(err))
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
