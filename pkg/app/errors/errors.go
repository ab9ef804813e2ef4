// Package errors holds the user-facing error taxonomy shared by chat commands
// and the ops API.
package errors

import (
	"errors"
	"net/http"
)

// GenericMessage is shown for any failure that carries no safe message.
const GenericMessage = "Something went wrong, try again later."

// Category classifies a ServiceError.
type Category int

const (
	CategoryGeneralError Category = iota
	// CategoryDataError means the caller sent malformed or invalid input.
	CategoryDataError
	CategoryUnauthorized
	// CategoryForbidden means the caller lacks a permission or tier.
	CategoryForbidden
	CategoryResourceNotFound
	CategoryDataConflict
	// CategoryRateLimited means a cooldown is in effect.
	CategoryRateLimited
	// CategoryDependencyFailure means an upstream API or chain node failed.
	CategoryDependencyFailure
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "data_error"
	case CategoryUnauthorized:
		return "unauthorized"
	case CategoryForbidden:
		return "forbidden"
	case CategoryResourceNotFound:
		return "not_found"
	case CategoryDataConflict:
		return "conflict"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryDependencyFailure:
		return "dependency_failure"
	default:
		return "general_error"
	}
}

// ServiceError pairs a message that is safe to show a member with the
// underlying error that only goes to the log.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err *ServiceError) Unwrap() error {
	return err.Err
}

// Is reports whether err is a ServiceError of category cat.
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// IsInternalError reports whether err should be treated as our fault.
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return true
	}
	return svcErr.Category == CategoryGeneralError || svcErr.Category == CategoryDependencyFailure
}

// UserMessage returns the text a member should see for err.
func UserMessage(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Message != "" && svcErr.Category != CategoryGeneralError {
		return svcErr.Message
	}
	return GenericMessage
}

func newError(cat Category, err error, message, fallback string) error {
	if err == nil {
		err = errors.New(fallback + ": " + message)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind the generic message.
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal error")
	}
	return &ServiceError{Category: CategoryGeneralError, Message: GenericMessage, Err: err}
}

func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message, "bad request")
}

func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message, "unauthorized")
}

func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message, "forbidden")
}

func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message, "not found")
}

func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message, "conflict")
}

func RateLimitedError(err error, message string) error {
	return newError(CategoryRateLimited, err, message, "rate limited")
}

// DependencyError reports an upstream failure with a message the member can act on.
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message, "dependency failure")
}

// StatusCode maps the category onto an HTTP status.
func (err *ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	case CategoryDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
