package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"msgstore/middleware"
	"msgstore/models"
)

const requestTimeout = 10 * time.Second

var validate = validator.New()

// MapError converts a domain error into an HTTP status and an error kind.
// A deadline wins over a transient failure it interrupted.
func MapError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidFieldValue):
		return http.StatusBadRequest, "InvalidFieldValue"
	case errors.Is(err, models.ErrUnscopedQuery):
		return http.StatusBadRequest, "UnscopedQuery"
	case errors.Is(err, models.ErrInvalidCursor):
		return http.StatusBadRequest, "InvalidCursor"
	case errors.Is(err, models.ErrMessageNotFound):
		return http.StatusNotFound, "MessageNotFound"
	case errors.Is(err, models.ErrStatusRegression):
		return http.StatusConflict, "StatusRegression"
	case errors.Is(err, models.ErrDuplicateMessage):
		return http.StatusConflict, "DuplicateMessage"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	case errors.Is(err, models.ErrTransientConnectivity):
		return http.StatusServiceUnavailable, "TransientConnectivity"
	}
	return http.StatusInternalServerError, "Internal"
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	status, kind := MapError(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.RequestIDFrom(c)),
			zap.String("kind", kind),
			zap.Error(err))
		if status == http.StatusInternalServerError {
			msg = "an unexpected error occurred"
		}
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": kind, "message": msg})
}

// enumValue accepts an enum as its name ("read") or its code (4 or "4").
type enumValue string

func (e *enumValue) UnmarshalJSON(b []byte) error {
	*e = enumValue(strings.Trim(string(b), `"`))
	return nil
}

func queryInt64(c *gin.Context, key string) (int64, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, invalidParam(key, v)
	}
	return n, nil
}

func invalidParam(key, value string) error {
	return fmt.Errorf("%w: %s: %q", models.ErrInvalidFieldValue, key, value)
}
