// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"depotstock/internal/core/apperror"
	"depotstock/pkg/logger"
)

// Recovery runs inside ErrorHandler: a panicking stock handler becomes an
// INTERNAL_ERROR body and the stack goes to the request logger. A panic after
// the handler wrote its response only aborts the chain.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "stock handler panicked",
				"route", c.FullPath(),
				"depot_id", c.Param("depot"),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if !c.Writer.Written() {
				_ = c.Error(apperror.NewInternal(fmt.Errorf("panic in %s: %v", c.FullPath(), rec)))
			}
			c.Abort()
		}()
		c.Next()
	}
}
