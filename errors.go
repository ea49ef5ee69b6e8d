// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidFormat is the error wrapped by all InvalidFormatErrors.
	ErrInvalidFormat = errors.New("invalid image format")

	// Internal error to signal that we should stop any further processing.
	errStop = errors.New("stop")
)

// InvalidFormatError is used when the bytes read violate a rule of the image format,
// e.g. a wrong magic number, an unknown enumerated code or a wrong fixed block size.
type InvalidFormatError struct {
	Err error
}

func (e *InvalidFormatError) Error() string {
	return e.Err.Error()
}

// Is reports whether target is ErrInvalidFormat.
func (e *InvalidFormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

func (e *InvalidFormatError) Unwrap() error {
	return e.Err
}

// IsInvalidFormat reports whether the error was an InvalidFormatError.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

func newInvalidFormatError(err error) error {
	if IsInvalidFormat(err) {
		return err
	}
	return &InvalidFormatError{err}
}

func newInvalidFormatErrorf(format string, args ...any) error {
	return newInvalidFormatError(fmt.Errorf(format, args...))
}

// UnexpectedEOFError is used when fewer bytes are available than a
// fixed size field or a declared length requires.
type UnexpectedEOFError struct {
	// Context describes what was being read, e.g. "when reading width".
	// May be empty.
	Context string
}

func (e *UnexpectedEOFError) Error() string {
	if e.Context == "" {
		return "unexpected end of file"
	}
	return "unexpected end of file " + e.Context
}

// Unwrap returns io.ErrUnexpectedEOF.
func (e *UnexpectedEOFError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

// IsUnexpectedEOF reports whether the error was an UnexpectedEOFError.
func IsUnexpectedEOF(err error) bool {
	var e *UnexpectedEOFError
	return errors.As(err, &e)
}

// IsIO reports whether err is an error from the underlying reader,
// i.e. neither an InvalidFormatError nor an UnexpectedEOFError.
func IsIO(err error) bool {
	return err != nil && !IsInvalidFormat(err) && !IsUnexpectedEOF(err)
}

func newUnexpectedEOFErrorf(format string, args ...any) error {
	return &UnexpectedEOFError{Context: fmt.Sprintf(format, args...)}
}

// ifEOF converts a short read into an UnexpectedEOFError with the given context.
// Any other error is returned unchanged.
func ifEOF(err error, format string, args ...any) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return newUnexpectedEOFErrorf(format, args...)
	}
	return err
}
