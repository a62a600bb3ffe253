package security

import "fmt"

// ValidationError reports a bounded input that is out of range. Unlike
// *Error it is a configuration-time failure and aborts before any stage
// executes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IntInRange validates lo <= v <= hi.
func IntInRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%d not in [%d, %d]", v, lo, hi)}
	}
	return nil
}

// IntMin validates v >= lo.
func IntMin(field string, v, lo int) error {
	if v < lo {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%d below minimum %d", v, lo)}
	}
	return nil
}

// NonEmpty validates that a required string is set.
func NonEmpty(field, v string) error {
	if v == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	return nil
}

// OneOf validates membership in a closed set.
func OneOf(field, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Reason: fmt.Sprintf("%q not one of %v", v, allowed)}
}
