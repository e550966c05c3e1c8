package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/directory"
	"evalhub/internal/domain/evaluation"
	"evalhub/internal/domain/questions"
	"evalhub/internal/domain/validation"
	"evalhub/internal/requestctx"
	"evalhub/internal/transport/http/api"
)

// WriteError maps domain errors onto the response envelope. Anything it does
// not recognise is logged and reported as a 500 with failCode.
func WriteError(w http.ResponseWriter, r *http.Request, failCode, failMessage string, err error) {
	requestID := requestctx.GetRequestID(r.Context())

	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		FailValidation(w, requestID, verr.Issues)
	case errors.Is(err, evaluation.ErrGateClosed):
		api.Fail(w, http.StatusConflict, "evaluations_disabled", "evaluations are currently disabled", requestID)
	case errors.Is(err, evaluation.ErrNotFound),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, questions.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "resource not found", requestID)
	case errors.Is(err, directory.ErrDuplicateEmail),
		errors.Is(err, directory.ErrDuplicateCode):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), requestID)
	case errors.Is(err, directory.ErrSelfArchive):
		api.Fail(w, http.StatusBadRequest, "invalid_operation", err.Error(), requestID)
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
	case errors.Is(err, auth.ErrMFARequired):
		api.Fail(w, http.StatusUnauthorized, "mfa_required", "mfa code required", requestID)
	case errors.Is(err, auth.ErrMFAInvalid):
		api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code", requestID)
	case errors.Is(err, auth.ErrMFANotSetUp):
		api.Fail(w, http.StatusBadRequest, "mfa_not_setup", "mfa setup required", requestID)
	case errors.Is(err, auth.ErrMFAUnavailable):
		api.Fail(w, http.StatusServiceUnavailable, "mfa_unavailable", "mfa requires an encryption key", requestID)
	default:
		slog.Error(failCode, "err", err, "requestId", requestID, "path", r.URL.Path)
		api.Fail(w, http.StatusInternalServerError, failCode, failMessage, requestID)
	}
}
