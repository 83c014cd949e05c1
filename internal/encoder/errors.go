// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConfigured is returned when a format is set on a live session.
	ErrAlreadyConfigured = errors.New("encoder already configured")

	// ErrNotConfigured is returned when an operation needs a session.
	ErrNotConfigured = errors.New("encoder not configured")

	// ErrBitrateOutOfRange is returned for target bitrates outside [0, MaxInt32].
	ErrBitrateOutOfRange = errors.New("target bitrate out of range")
)

// ErrorDomain groups element errors.
type ErrorDomain int

const (
	DomainCore ErrorDomain = iota
	DomainLibrary
	DomainResource
	DomainStream
)

func (d ErrorDomain) String() string {
	switch d {
	case DomainCore:
		return "core"
	case DomainLibrary:
		return "library"
	case DomainResource:
		return "resource"
	case DomainStream:
		return "stream"
	}
	return fmt.Sprintf("domain(%d)", int(d))
}

// ErrorCode identifies an element error inside its domain.
type ErrorCode int

const (
	CodeFailed ErrorCode = iota
	CodeInit
	CodeSettings
	CodeFormat
)

func (c ErrorCode) String() string {
	switch c {
	case CodeFailed:
		return "failed"
	case CodeInit:
		return "init"
	case CodeSettings:
		return "settings"
	case CodeFormat:
		return "format"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// ElementError is posted to the pipeline's error channel. Fatal errors stop
// the stream; non-fatal ones report degraded output.
type ElementError struct {
	Domain  ErrorDomain
	Code    ErrorCode
	Fatal   bool
	Message string
	Debug   string
	Err     error
}

// Sentinels for errors.Is matching on domain and code.
var (
	ErrLibraryFailed   = &ElementError{Domain: DomainLibrary, Code: CodeFailed}
	ErrLibraryInit     = &ElementError{Domain: DomainLibrary, Code: CodeInit}
	ErrLibrarySettings = &ElementError{Domain: DomainLibrary, Code: CodeSettings}
	ErrStreamFailed    = &ElementError{Domain: DomainStream, Code: CodeFailed}
	ErrStreamFormat    = &ElementError{Domain: DomainStream, Code: CodeFormat}
)

func (e *ElementError) Error() string {
	msg := fmt.Sprintf("%s/%s", e.Domain, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Debug != "" {
		msg += " (" + e.Debug + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ElementError) Unwrap() error { return e.Err }

// Is matches any ElementError with the same domain and code.
func (e *ElementError) Is(target error) bool {
	t, ok := target.(*ElementError)
	return ok && t.Domain == e.Domain && t.Code == e.Code
}

func elementError(domain ErrorDomain, code ErrorCode, fatal bool, msg, debug string, err error) *ElementError {
	return &ElementError{Domain: domain, Code: code, Fatal: fatal, Message: msg, Debug: debug, Err: err}
}
