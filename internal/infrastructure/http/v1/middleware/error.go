package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"depotstock/internal/core/apperror"
	"depotstock/internal/infrastructure/http/v1/dto"
	"depotstock/pkg/logger"
)

// ErrorHandler turns the last handler error into a {code, message, details} body.
// 5xx causes never reach the client; they are logged instead. A
// STORAGE_UNAVAILABLE body keeps the failing line and the partial outcome so
// the terminal knows which lines were committed before the store went away.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		ctx := c.Request.Context()

		appErr, ok := apperror.AsAppError(err)
		if !ok {
			logger.Error(ctx, "unhandled error", "error", err)
			appErr = apperror.NewInternal(err)
		}

		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}

		body := dto.ErrorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
		if status >= http.StatusInternalServerError {
			logger.Error(ctx, "request failed",
				"code", appErr.Code, "details", appErr.Details, "cause", appErr.Err)
			body.Details = publicDetails(appErr)
			body.Details["request_id"] = c.GetString("request_id")
			if appErr.Code == apperror.CodeAllocationInconsistency {
				body.Code = apperror.CodeInternal
				body.Message = "Internal server error"
			}
		} else if appErr.Err != nil {
			logger.Debug(ctx, "request rejected", "code", appErr.Code, "cause", appErr.Err)
		}

		c.JSON(status, body)
	}
}

// lineDetails are the keys a terminal needs to resume a multi-line operation.
var lineDetails = []string{"item_id", "line_no", "outcome"}

func publicDetails(appErr *apperror.AppError) map[string]any {
	out := make(map[string]any, len(lineDetails)+1)
	if appErr.Code != apperror.CodeStorageUnavailable {
		return out
	}
	for _, k := range lineDetails {
		if v, ok := appErr.Details[k]; ok {
			out[k] = v
		}
	}
	return out
}
