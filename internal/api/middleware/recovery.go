package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/datacloud-project/orchestrator/internal/api/types"
	"github.com/datacloud-project/orchestrator/pkg/logger"
)

// Recovery logs panics and returns the standard error envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.L().Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()))
				types.WriteJSON(w, http.StatusInternalServerError, types.ErrorMessage{
					Status: http.StatusInternalServerError,
					Detail: "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
