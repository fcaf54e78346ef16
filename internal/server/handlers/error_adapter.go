package handlers

import (
	"errors"
	"net/http"

	apperrors "github.com/patternscope/patternscope/internal/errors"
	"github.com/patternscope/patternscope/internal/server/middleware"
	"github.com/patternscope/patternscope/pkg/backend"
)

// HTTPErrorResponder maps an error to an HTTP response.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// httpErrorResponder is the responder used by all handlers. Tests swap
// it out to observe error paths without asserting on wire bytes.
var httpErrorResponder HTTPErrorResponder = defaultHTTPErrorResponder

// SetHTTPErrorResponder replaces the error responder. Passing nil
// restores the default.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	if fn == nil {
		fn = defaultHTTPErrorResponder
	}
	httpErrorResponder = fn
}

// ResetHTTPErrorResponder restores the default responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultHTTPErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

// defaultHTTPErrorResponder classifies known error values into the
// standard envelope. Anything unrecognized is a 500.
func defaultHTTPErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	switch {
	case errors.Is(err, backend.ErrWorkflowNotFound):
		apperrors.NotFound(w, requestID)
	case errors.Is(err, ErrAnalysisNotFound):
		apperrors.NotFound(w, requestID)
	case errors.Is(err, ErrInvalidRequest):
		apperrors.BadRequest(w, requestID, err.Error())
	default:
		apperrors.Internal(w, requestID, err.Error())
	}
}
