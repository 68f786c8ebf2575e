package item

import (
	"errors"

	"github.com/hay-kot/criterio"
)

// ErrNotFound is returned when no item has the requested id.
var ErrNotFound = errors.New("item not found")

// ErrInvalidInput is returned when a request payload cannot be decoded.
var ErrInvalidInput = errors.New("invalid input")

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// AsValidation reports whether err carries field-level validation failures.
func AsValidation(err error) (criterio.FieldErrors, bool) {
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs, true
	}
	return nil, false
}
