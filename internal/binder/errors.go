package binder

import (
	"errors"
	"fmt"
)

// Binding error kinds. Match them with errors.Is on a *BindingError.
var (
	// ErrInjectionSuspected is returned when a supplied value matches the injection screen.
	ErrInjectionSuspected = errors.New("binder: injection suspected")

	// ErrMalformedTemplate is returned when a template contains an invalid placeholder.
	ErrMalformedTemplate = errors.New("binder: malformed template")
)

// BindingError describes a failed bind.
type BindingError struct {
	// Kind is ErrInjectionSuspected or ErrMalformedTemplate.
	Kind error

	// Placeholder is the placeholder whose value was rejected, if any.
	Placeholder string

	// Value is the rejected value, if any.
	Value string

	// Err is the scanner error for malformed templates.
	Err error
}

func (e *BindingError) Error() string {
	switch {
	case e.Placeholder != "":
		return fmt.Sprintf("%v: placeholder %q value %q", e.Kind, e.Placeholder, e.Value)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes the kind and the underlying scanner error.
func (e *BindingError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}
