// Package checkpoint provides a way to decorate errors by some additional caller information
// which results in something similar to a stacktrace.
// Each error added to a checkpoint can be checked by errors.Is and retrieved by errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From just wraps an error by a new checkpoint which adds some caller information to the error.
// It returns nil, if err == nil.
func From(err error) error {
	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	if err == nil {
		return nil
	}

	return newCheckpoint(err, nil)
}

// Wrap adds a checkpoint with some caller information from an error and accepts
// also another error which can further describe the checkpoint.
// Returns nil if prev == nil.
// This allows for example to predefine some errors and use them later:
//
//	var(
//			ErrSomethingSpecialWentWrong = errors.New("a very bad error")
//	)
//	func someFunction() error {
//		err := somethingOtherThatThrowsErrors()
//		return checkpoint.Wrap(err, ErrSomethingSpecialWentWrong)
//	}
//
// errors.Is then matches both ErrSomethingSpecialWentWrong and the error
// returned by somethingOtherThatThrowsErrors.
func Wrap(prev, err error) error {
	if prev == io.EOF {
		return io.EOF
	}

	if prev == nil {
		return nil
	}

	return newCheckpoint(err, prev)
}

// Errorf creates a new checkpoint from a formatted message. Like fmt.Errorf it
// supports %w, so a sentinel error can be marked as the reason:
//
//	checkpoint.Errorf("%w: cluster %d", diskerr.ErrBadChain, n)
func Errorf(format string, args ...interface{}) error {
	return newCheckpoint(fmt.Errorf(format, args...), nil)
}

// newCheckpoint has to be called directly by the exported functions, as it
// records the caller of these.
func newCheckpoint(err, prev error) *checkpoint {
	_, file, line, ok := runtime.Caller(2)

	return &checkpoint{
		err:  err,
		prev: prev,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) location() string {
	if e.callerOk {
		return fmt.Sprintf("%s:%d", e.file, e.line)
	}
	return "unknown"
}

func (e *checkpoint) Error() string {
	var b strings.Builder
	b.WriteString(e.location())
	b.WriteString(": ")
	if e.err != nil {
		b.WriteString(e.err.Error())
	}

	if e.prev == nil {
		return b.String()
	}

	// A previous checkpoint is printed on its own line, anything else is the root cause.
	if _, ok := e.prev.(*checkpoint); ok {
		b.WriteString("\n\t")
		b.WriteString(strings.ReplaceAll(e.prev.Error(), "\n", "\n\t"))
	} else {
		b.WriteString(": ")
		b.WriteString(e.prev.Error())
	}
	return b.String()
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return errors.As(e.err, target)
}
