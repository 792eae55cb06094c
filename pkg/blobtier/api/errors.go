package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// renderError writes err with the status code it maps to. Status errors keep
// their message; server errors are not echoed back.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := blobtier.StatusCode(err)
	message := err.Error()

	var se *blobtier.StatusError
	switch {
	case errors.As(err, &se):
		message = se.Message
	case code >= http.StatusInternalServerError:
		message = http.StatusText(code)
	}

	if code >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.DebugContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}

	render.Status(r, code)
	render.JSON(w, r, ErrorResponse{Code: code, Message: message})
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: http.StatusBadRequest, Message: message})
}
