package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-api/gatehouse/internal/shared"
)

// RespondError maps domain sentinel errors to envelope responses. Handlers
// that need entity-specific messages check the sentinels themselves first.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "Not found")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, shared.ErrTokenInvalid):
		Error(w, http.StatusUnauthorized, "Unauthenticated")
	case errors.Is(err, shared.ErrDuplicateEmail):
		ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"email": "The email has already been taken"})
	case errors.Is(err, shared.ErrDuplicateSlug):
		ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"slug": "The slug has already been taken"})
	case errors.Is(err, shared.ErrProtectedRole):
		Error(w, http.StatusBadRequest, "Cannot delete protected roles")
	case errors.Is(err, shared.ErrSelfDelete):
		Error(w, http.StatusBadRequest, "You cannot delete your own account")
	case errors.Is(err, shared.ErrDependency):
		Error(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

// FieldErrors flattens validator errors into field -> message pairs.
func FieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["general"] = "Invalid request payload"
		return out
	}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		out[field] = fieldMessage(field, fe)
	}
	return out
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with":
		return fmt.Sprintf("The %s field is required", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("The %s confirmation does not match", strings.TrimSuffix(field, "_confirmation"))
	default:
		return fmt.Sprintf("The %s field is invalid", field)
	}
}
