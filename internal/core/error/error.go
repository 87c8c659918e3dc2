package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is returned when a Redis key does not exist.
	RedisNotFoundMessage = "record not found"

	NoModelsMessage        = "no AI models are configured or available"
	ModelsExhaustedMessage = "AI call failed: every available model failed to answer"
	ImageDecodeMessage     = "the photo could not be read, please try a different image"
	InvalidInputMessage    = "invalid request"
	NotFoundMessage        = "not found"
	TooLargeMessage        = "request body is too large"
)

// Error kinds. Match them with errors.Is on any error returned by the solver.
var (
	ErrNoModelsAvailable  = errors.New("no models available")
	ErrAllModelsExhausted = errors.New("all models exhausted")
	ErrImageDecode        = errors.New("image decode failed")
	ErrSchemaMismatch     = errors.New("provider response schema mismatch")
	ErrEmptyCandidates    = errors.New("provider returned no candidates")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTooLarge           = errors.New("request too large")
)

// AppError wraps an underlying error with an HTTP status and safe message.
// The cause is only shown to callers when ShowCause is set.
type AppError struct {
	Err       error
	Status    int
	Message   string
	ShowCause bool
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the underlying error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// withCause marks the wrapped error as safe to show to callers.
func (e *AppError) withCause() *AppError {
	e.ShowCause = true
	return e
}

// NoModelsAvailable is returned when the ranked model list is empty.
func NoModelsAvailable() *AppError {
	return New(ErrNoModelsAvailable, http.StatusServiceUnavailable, NoModelsMessage)
}

// ModelsExhausted reports that every ranked model failed. The last failure is
// kept in the message so callers can show what went wrong.
func ModelsExhausted(lastModel string, last error) *AppError {
	return New(
		fmt.Errorf("%w: last attempt %s: %w", ErrAllModelsExhausted, lastModel, last),
		http.StatusBadGateway,
		ModelsExhaustedMessage,
	).withCause()
}

// ImageDecode wraps a decoder failure for a user supplied photo.
func ImageDecode(err error) *AppError {
	return New(fmt.Errorf("%w: %v", ErrImageDecode, err), http.StatusUnprocessableEntity, ImageDecodeMessage).withCause()
}

// InvalidInput reports a caller mistake such as an empty question.
func InvalidInput(reason string) *AppError {
	return New(fmt.Errorf("%w: %s", ErrInvalidInput, reason), http.StatusBadRequest, InvalidInputMessage).withCause()
}

// NotFound reports a missing conversation or history item.
func NotFound(what string) *AppError {
	return New(fmt.Errorf("%w: %s", ErrNotFound, what), http.StatusNotFound, NotFoundMessage).withCause()
}

// TooLarge reports a request body over the configured byte limit.
func TooLarge(limit int64) *AppError {
	return New(fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, limit), http.StatusRequestEntityTooLarge, TooLargeMessage).withCause()
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the user-facing message for err. Causes of infrastructure
// errors such as Redis failures stay out of it.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.ShowCause {
			return appErr.Error()
		}
		return appErr.Message
	}
	return SystemErrorMessage
}
