package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error     string            `json:"error"`               // Error message
	Code      string            `json:"code,omitempty"`      // Machine readable category
	Retryable bool              `json:"retryable,omitempty"` // Safe to retry the same call
	Details   map[string]string `json:"details,omitempty"`   // Validation details
}

var accountNumberPattern = regexp.MustCompile(`^[0-9]{10}$`)

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper with the bankcode
// (known supplier bank) and nuban (10 digit account number) tags registered.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("bankcode", func(fl validator.FieldLevel) bool {
		_, ok := defaultBanks.Lookup(fl.Field().String())
		return ok
	})
	v.RegisterValidation("nuban", func(fl validator.FieldLevel) bool {
		return accountNumberPattern.MatchString(fl.Field().String())
	})
	return &ValidationHelper{
		validator: v,
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	writeErrorResponse(w, statusCode, ErrorResponse{Error: message}, validationErr)
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, errorResp ErrorResponse, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
