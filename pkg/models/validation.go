package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateEvent(ev *Event) error {
	if ev == nil {
		return &ValidationError{
			Field:   "event",
			Message: "event cannot be nil",
		}
	}

	if ev.Type == "" {
		return &ValidationError{
			Field:   "type",
			Message: "event type is required",
		}
	}

	if ev.Date.IsZero() {
		return &ValidationError{
			Field:   "date",
			Message: "event date is required",
		}
	}

	if ev.Count < 0 {
		return &ValidationError{
			Field:   "count",
			Message: "event count cannot be negative",
		}
	}

	return nil
}

// ValidateIdentifier checks reference ids: 8 to 100 letters, digits or
// dashes.
func ValidateIdentifier(field, id string) error {
	if len(id) < 8 || len(id) > 100 {
		return &ValidationError{
			Field:   field,
			Message: "must be between 8 and 100 characters",
		}
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid character %q", r),
			}
		}
	}
	return nil
}
