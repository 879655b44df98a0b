package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"alcyxob/fitness-sessions/internal/apperror"
)

var kindStatus = map[apperror.Kind]int{
	apperror.KindValidation:        http.StatusBadRequest,
	apperror.KindAuthorization:     http.StatusForbidden,
	apperror.KindNotFound:          http.StatusNotFound,
	apperror.KindConflict:          http.StatusConflict,
	apperror.KindResourceExhausted: http.StatusPaymentRequired,
	apperror.KindInternal:          http.StatusInternalServerError,
}

// StatusFor maps an error onto its HTTP status.
func StatusFor(err error) int {
	if status, ok := kindStatus[apperror.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": msg} (plus "fields" for validation errors) and aborts.
// Internal errors are attached to the context so the request logger records the cause.
func respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal {
		_ = c.Error(err)
	}

	body := gin.H{"error": apperror.MessageOf(err)}
	var appErr *apperror.Error
	if errors.As(err, &appErr) && len(appErr.Fields) > 0 && kind == apperror.KindValidation {
		body["fields"] = appErr.Fields
	}
	c.AbortWithStatusJSON(StatusFor(err), body)
}
