package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamDenied      = errors.New("upstream denied access")
	ErrTimeout             = errors.New("operation timed out")
)

// ConfigError reports a missing or invalid configuration field. It is raised
// when a component config is decoded, never at call time.
type ConfigError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Component, e.Reason)
	}
	return fmt.Sprintf("%s: %s.%s: %s", ErrConfiguration, e.Component, e.Field, e.Reason)
}

// Is enables errors.Is matching against ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func MissingField(component, field string) error {
	return &ConfigError{Component: component, Field: field, Reason: "is required"}
}

func InvalidField(component, field, reason string) error {
	return &ConfigError{Component: component, Field: field, Reason: reason}
}

// UpstreamError wraps a failure talking to an external platform. Denied
// distinguishes auth failures (bad or expired credentials) from transient
// unavailability.
type UpstreamError struct {
	Source     string
	StatusCode int
	Denied     bool
	Err        error
}

func (e *UpstreamError) Error() string {
	kind := ErrUpstreamUnavailable
	if e.Denied {
		kind = ErrUpstreamDenied
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: HTTP %d: %v", kind, e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", kind, e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is enables errors.Is matching against ErrUpstreamDenied or ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	if e.Denied {
		return target == ErrUpstreamDenied
	}
	return target == ErrUpstreamUnavailable
}

// Unavailable wraps a transport-level failure.
func Unavailable(source string, err error) error {
	return &UpstreamError{Source: source, Err: err}
}

// StatusError maps a non-2xx upstream response to an UpstreamError.
// 401 and 403 are denials, everything else is treated as unavailability.
func StatusError(source string, status int, body string) error {
	return &UpstreamError{
		Source:     source,
		StatusCode: status,
		Denied:     status == http.StatusUnauthorized || status == http.StatusForbidden,
		Err:        errors.New(body),
	}
}

type TimeoutError struct {
	Operation string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s after %s", ErrTimeout, e.Operation, e.After)
}

// Is enables errors.Is matching against ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
