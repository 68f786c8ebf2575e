package item

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/hay-kot/criterio"
)

const (
	NameMinLen        = 3
	NameMaxLen        = 100
	DescriptionMinLen = 1
	DescriptionMaxLen = 500
	PriorityMin       = 1
	PriorityMax       = 5
)

// Validate checks every field of it against the data model and returns
// criterio.FieldErrors describing each violation.
func Validate(it Item) error {
	var errs criterio.FieldErrorsBuilder

	if err := textLength(it.Name, NameMinLen, NameMaxLen); err != nil {
		errs = errs.Append("name", err)
	}
	if err := textLength(it.Description, DescriptionMinLen, DescriptionMaxLen); err != nil {
		errs = errs.Append("description", err)
	}
	if !it.Status.Valid() {
		errs = errs.Append("status", fmt.Errorf("must be one of %s, %s, %s", StatusActive, StatusInactive, StatusPending))
	}
	if it.Priority < PriorityMin || it.Priority > PriorityMax {
		errs = errs.Append("priority", fmt.Errorf("must be between %d and %d", PriorityMin, PriorityMax))
	}

	return errs.ToError()
}

// NewBatch builds every item in fs, failing as a whole when fs is empty or
// any entry is invalid. Field names of entry i are prefixed with items[i].
func NewBatch(fs []Fields, now time.Time) ([]Item, error) {
	if len(fs) == 0 {
		return nil, criterio.NewFieldErrors("items", errors.New("must be a non-empty array"))
	}

	var errs criterio.FieldErrorsBuilder
	items := make([]Item, 0, len(fs))
	for i, f := range fs {
		it, err := New(f, now)
		if err != nil {
			fieldErrs, ok := AsValidation(err)
			if !ok {
				return nil, err
			}
			for _, fe := range fieldErrs {
				errs = errs.Append(fmt.Sprintf("items[%d].%s", i, fe.Field), fe.Err)
			}
			continue
		}
		items = append(items, it)
	}
	if err := errs.ToError(); err != nil {
		return nil, err
	}
	return items, nil
}

func textLength(s string, minLen, maxLen int) error {
	if s == "" {
		return errors.New("is required")
	}
	if n := utf8.RuneCountInString(s); n < minLen || n > maxLen {
		return fmt.Errorf("must be between %d and %d characters", minLen, maxLen)
	}
	return nil
}
