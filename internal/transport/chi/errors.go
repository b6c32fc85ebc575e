package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docchat/internal/domain"
	"github.com/kailas-cloud/docchat/internal/logger"
)

// ErrorCode is the machine-readable error category returned to clients.
type ErrorCode string

// Error codes.
const (
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeDocumentNotFound ErrorCode = "document_not_found"
	CodeInternalError    ErrorCode = "internal_error"
)

const retryLaterMessage = "something went wrong, please try again later"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// errorHandlers are tried in order; anything unmatched is an internal error.
var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized, "authentication required"),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited,
		"too many requests, try again later"),
	validationHandler,
	sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound, "document not found"),
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns the client-facing message for err. Only the fixed category
// messages and the caller's own validation details ever cross the boundary.
func safeDomainMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "authentication required"
	case errors.Is(err, domain.ErrRateLimited):
		return "too many requests, try again later"
	case errors.Is(err, domain.ErrUnsupportedOption):
		return domain.ErrUnsupportedOption.Error()
	case errors.Is(err, domain.ErrValidation):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return ve.Error()
		}
		return domain.ErrValidation.Error()
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "document not found"
	default:
		return retryLaterMessage
	}
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode, msg string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeValidationFailed, safeDomainMessage(err))
	return true
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Info("request rejected", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, retryLaterMessage)
}
