package services

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/coopa/backend/internal/moniepoint"
	"github.com/coopa/backend/internal/repository"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidTransition   = errors.New("invalid escrow transition")
	ErrInsufficientBalance = errors.New("insufficient escrow balance")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrNotConfigured       = errors.New("backend not configured")
	ErrGateway             = errors.New("payment provider unavailable")
)

// AppError pairs a category sentinel with a client-safe message. Err holds
// the underlying cause, which is logged but never sent to the client.
type AppError struct {
	Kind       error
	Message    string
	Err        error
	Details    map[string]string
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newAppError(kind error, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: cause}
}

// fromRepository maps storage errors onto the service taxonomy.
func fromRepository(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return newAppError(ErrNotFound, what+" not found", err)
	case errors.Is(err, repository.ErrVersionConflict):
		return newAppError(ErrConflict, what+" was modified concurrently, retry the request", err)
	case errors.Is(err, repository.ErrAlreadyExists):
		return newAppError(ErrConflict, what+" already exists", err)
	}
	return err
}

func gatewayError(op string, err error) *AppError {
	if errors.Is(err, moniepoint.ErrNotConfigured) {
		return newAppError(ErrNotConfigured, "payment provider not configured", err)
	}
	return newAppError(ErrGateway, "payment provider unavailable, please try again", fmt.Errorf("%s: %w", op, err))
}

type errorClass struct {
	kind      error
	status    int
	code      string
	retryable bool
}

var errorClasses = []errorClass{
	{ErrValidation, http.StatusBadRequest, "validation_failed", false},
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized", false},
	{ErrForbidden, http.StatusForbidden, "forbidden", false},
	{ErrNotFound, http.StatusNotFound, "not_found", false},
	{ErrInvalidTransition, http.StatusConflict, "invalid_transition", false},
	{ErrConflict, http.StatusConflict, "conflict", true},
	{ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance", true},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited", true},
	{ErrNotConfigured, http.StatusServiceUnavailable, "not_configured", false},
	{ErrGateway, http.StatusInternalServerError, "gateway_error", true},
}

// StatusFor returns the HTTP status, error code and retryability for err.
func StatusFor(err error) (int, string, bool) {
	for _, c := range errorClasses {
		if errors.Is(err, c.kind) {
			return c.status, c.code, c.retryable
		}
	}
	return http.StatusInternalServerError, "internal_error", false
}

// WriteError renders err with the envelope and status of its category.
// Unclassified errors are logged and reported generically.
func WriteError(w http.ResponseWriter, err error) {
	status, code, retryable := StatusFor(err)

	message := "internal server error"
	var appErr *AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Round(time.Second)/time.Second)))
		}
	}

	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s: %v", code, err)
	}

	resp := ErrorResponse{Error: message, Code: code, Retryable: retryable}
	if appErr != nil && len(appErr.Details) > 0 {
		resp.Details = appErr.Details
	}
	writeErrorResponse(w, status, resp, err)
}
