package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/coopa/backend/internal/middleware"
	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/repository"
	"github.com/coopa/backend/internal/services"
)

const maxBodyBytes = 1_048_576

var errBackendUnavailable = &services.AppError{
	Kind:    services.ErrNotConfigured,
	Message: "database not configured, set DATABASE_HOST (or STORE_BACKEND=memory) and restart the server",
}

// decodeBody reads a single JSON object into dst and validates it. It
// writes the error response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

// currentUser loads the caller's profile for role checks.
func currentUser(w http.ResponseWriter, r *http.Request, users repository.UserRepository) (*models.User, bool) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return nil, false
	}
	if users == nil {
		services.WriteError(w, errBackendUnavailable)
		return nil, false
	}
	u, err := services.ResolveUser(r.Context(), users, userID)
	if err != nil {
		services.WriteError(w, err)
		return nil, false
	}
	return u, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
