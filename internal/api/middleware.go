package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/predict"
)

// errorResponse writes an error JSON response.
func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// handleError maps domain errors onto HTTP statuses.
func (s *Server) handleError(c *gin.Context, err error) {
	var verr *apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, apperrors.ErrValidation):
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, predict.ErrModelNotLoaded):
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
	case apperrors.IsStorageUnavailable(err):
		s.logger.Error("storage unavailable", "path", c.FullPath(), "error", err)
		errorResponse(c, http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		errorResponse(c, http.StatusInternalServerError, "internal error")
	}
}

// studentID parses the :id path parameter, writing a 400 on failure.
func studentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		errorResponse(c, http.StatusBadRequest, "invalid student id")
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body, writing a 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
