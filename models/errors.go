package models

import (
	"errors"
	"fmt"
)

// ErrSelectorNotFound is wrapped by MutationError when node-removal finds no element.
var ErrSelectorNotFound = errors.New("selector not found")

// ConfigurationError reports a problem with the compiled-in catalog or the
// enablement rules. It is only ever produced at startup.
type ConfigurationError struct {
	Component string // "registry", "enablement", "mutation"
	Subject   string // interceptor id, rule line, strategy literal...
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s configuration: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("%s configuration (%s): %v", e.Component, e.Subject, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// MutationError means a mutation strategy could not complete against the
// current document shape. The pipeline logs it and moves on.
type MutationError struct {
	Strategy string
	Selector string
	Err      error
}

func (e *MutationError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Strategy, e.Selector, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// TransportError covers every failure of the delegation socket: refused
// connections, malformed or partial frames and timeouts.
type TransportError struct {
	Op  string // "dial", "write", "read", "decode"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err (or anything it wraps) is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
