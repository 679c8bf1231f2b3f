package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"voiceattend/internal/attendance"
	"voiceattend/internal/dashboard"
	"voiceattend/internal/voiceclient"
)

var badRequest = []error{
	attendance.ErrClassNameRequired,
	attendance.ErrInvalidVerdict,
	attendance.ErrFullNameRequired,
	attendance.ErrUSNRequired,
	attendance.ErrProfileClassMissing,
	dashboard.ErrClassIDRequired,
	dashboard.ErrStudentIDRequired,
}

var conflict = []error{
	dashboard.ErrNothingToUpdate,
	dashboard.ErrPendingCommit,
}

// statusFor maps a dashboard or service error to an HTTP status.
func statusFor(err error) int {
	for _, e := range badRequest {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	for _, e := range conflict {
		if errors.Is(err, e) {
			return http.StatusConflict
		}
	}
	if errors.Is(err, dashboard.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	var se *voiceclient.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusNotFound:
			return http.StatusNotFound
		case http.StatusBadRequest, http.StatusConflict:
			return se.Code
		}
	}
	return http.StatusBadGateway
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("httpapi: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
