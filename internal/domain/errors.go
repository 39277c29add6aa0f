package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing required field, malformed date).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrConflict is returned when a write collides with existing state: a unique
// constraint (duplicate provider message id) or a message that already left
// the pending state. Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the acting member may not perform an action,
// e.g. a non-owner trying to apply a reviewed message.
var ErrForbidden = errors.New("forbidden")

// ErrNoContent is returned by the content assembler when a message carries
// neither text nor any usable media.
var ErrNoContent = errors.New("no content")
