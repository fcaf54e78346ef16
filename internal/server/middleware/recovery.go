package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/patternscope/patternscope/internal/errors"
)

// ErrorResponse is the JSON envelope written for recovered panics.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts handler panics into 500 responses with the standard
// error envelope instead of tearing down the connection.
func Recovery(next http.Handler) http.Handler {
	return RecoveryWithLogger(next, zap.NewNop())
}

// RecoveryWithLogger is Recovery with panic diagnostics sent to a logger.
func RecoveryWithLogger(next http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := GetRequestID(r.Context())
				logger.Error("handler panicked",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				apperrors.Internal(w, requestID, fmt.Sprintf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery kept for wiring symmetry.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}
