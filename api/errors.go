package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/movement-ledger/ledger"
	"go.uber.org/zap"
)

// errBadRequest marks malformed requests caught before any domain call.
var errBadRequest = errors.New("bad request")

// statusFor maps the ledger error taxonomy onto HTTP:
//
//	not found       404
//	duplicate       409
//	client input    400
//	anything else   500
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) ledger.Code {
	if errors.Is(err, errBadRequest) {
		return ledger.CodeValidation
	}
	return ledger.CodeOf(err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError renders err as {"code", "message"}. Internal failures are
// logged and their details withheld from the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := codeFor(err)
	message := err.Error()

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = "internal error"
	}
	if status == http.StatusBadRequest || status == http.StatusConflict {
		requestsRejected.WithLabelValues(string(code)).Inc()
	}

	writeJSON(w, status, ErrorResponse{Code: string(code), Message: message})
}

func badRequest(message string) error {
	return &requestError{message: message}
}

type requestError struct {
	message string
}

func (e *requestError) Error() string { return e.message }

func (e *requestError) Unwrap() error { return errBadRequest }
