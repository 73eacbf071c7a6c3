// Package checkpoint decorates errors with the source position where they passed
// through the driver. A chain of checkpoints reads like a short stack trace while
// every wrapped error stays reachable through errors.Is and errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From records the caller position on err.
// It returns nil if err is nil. io.EOF and io.ErrUnexpectedEOF are returned unchanged
// because callers compare them with ==.
func From(err error) error {
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}
	return newCheckpoint(nil, err)
}

// Wrap records the caller position on cause and attaches kind, which usually is one
// of the exported sentinel errors of the calling package:
//
//	if err := dev.ReadSector(addr, buf); err != nil {
//		return checkpoint.Wrap(err, ErrRead)
//	}
//
// errors.Is matches both kind and anything in the chain of cause.
// Wrap returns nil if cause is nil, and io.EOF unchanged.
func Wrap(cause, kind error) error {
	if cause == nil || cause == io.EOF {
		return cause
	}
	return newCheckpoint(kind, cause)
}

// Wrapf is Wrap with a formatted description as kind.
// The description may use %w to mark further errors as matchable.
func Wrapf(cause error, format string, args ...interface{}) error {
	if cause == nil || cause == io.EOF {
		return cause
	}
	return newCheckpoint(fmt.Errorf(format, args...), cause)
}

// Trace lists the positions recorded along the chain of err, outermost first.
func Trace(err error) []string {
	var trace []string
	for err != nil {
		if c, ok := err.(*checkpoint); ok {
			trace = append(trace, c.pos)
		}
		err = errors.Unwrap(err)
	}
	return trace
}

type checkpoint struct {
	kind  error
	cause error
	pos   string
}

func newCheckpoint(kind, cause error) *checkpoint {
	// Skip newCheckpoint and the exported constructor.
	pos := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		pos = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return &checkpoint{kind: kind, cause: cause, pos: pos}
}

func (c *checkpoint) Error() string {
	var b strings.Builder
	if c.kind != nil {
		b.WriteString(c.kind.Error())
		b.WriteString(": ")
	}

	// Nested checkpoints print their own description only; positions are in Trace.
	b.WriteString(c.cause.Error())
	return b.String()
}

func (c *checkpoint) Unwrap() error {
	return c.cause
}

func (c *checkpoint) Is(target error) bool {
	return c.kind != nil && errors.Is(c.kind, target)
}

func (c *checkpoint) As(target interface{}) bool {
	return c.kind != nil && errors.As(c.kind, target)
}
