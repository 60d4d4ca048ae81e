// Package apierror defines the HTTP-facing error taxonomy (§7 ApiError).
package apierror

import "net/http"

// Kind classifies an ApiError for HTTP status mapping.
type Kind int

const (
	// KindBadRequest covers invalid q/w/i/n query parameters.
	KindBadRequest Kind = iota
	// KindNotFound covers unknown stashes/eras and not-yet-ready boards.
	KindNotFound
	// KindInternal covers cache or chain failures surfaced during a request.
	KindInternal
)

// ApiError is the JSON-serialisable error returned to HTTP clients.
type ApiError struct {
	Kind    Kind
	Message string
}

func (e *ApiError) Error() string { return e.Message }

// Status returns the HTTP status code for this error's Kind.
func (e *ApiError) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Body returns the {errors: [string]} response body shape.
func (e *ApiError) Body() map[string][]string {
	return map[string][]string{"errors": {e.Message}}
}

// BadRequest constructs a 400 ApiError.
func BadRequest(msg string) *ApiError { return &ApiError{Kind: KindBadRequest, Message: msg} }

// NotFound constructs a 404 ApiError.
func NotFound(msg string) *ApiError { return &ApiError{Kind: KindNotFound, Message: msg} }

// Internal constructs a 500 ApiError.
func Internal(msg string) *ApiError { return &ApiError{Kind: KindInternal, Message: msg} }

// ValidatorNotFound builds the specific user-visible message for an unknown stash.
func ValidatorNotFound(stash string) *ApiError {
	return NotFound("Validator account with address " + stash + " not found")
}

// RankNotReady builds the specific user-visible message for a rank query on a
// board that has not been generated yet.
func RankNotReady(stash string) *ApiError {
	return NotFound("The rank for stash " + stash + " is not yet available. Wait a second and try again.")
}

// Syncing builds the message returned when a board generation is refused
// because a full resync is in progress.
func Syncing() *ApiError {
	return NotFound("the service is currently syncing, try again shortly")
}
