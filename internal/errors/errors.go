// Package errors defines VDO's fixed error-kind vocabulary as a
// set of sentinel Kind values, each implementing the error interface and
// wrappable/markable via github.com/cockroachdb/errors so callers can test
// kind membership with errors.Is() instead of string comparison - the same
// pattern pebble uses for ErrNotFound/ErrClosed/ErrReadOnly in db.go.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is one of the fixed error kinds from .
type Kind struct {
	name string
}

func (k *Kind) Error() string { return k.name }

// Errorf builds an error of this kind with a formatted message, markable
// with errors.Is(err, kind).
func (k *Kind) Errorf(format string, args ...any) error {
	return errors.Mark(fmt.Errorf("%s: %s", k.name, fmt.Sprintf(format, args...)), k)
}

// Wrap marks err as belonging to this kind while preserving the original
// error for Unwrap/message purposes.
func (k *Kind) Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), k)
}

// Wrapf is Wrap with a formatted message.
func (k *Kind) Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), k)
}

// Is reports whether err (or something it wraps) is of this kind.
func (k *Kind) Is(err error) bool { return errors.Is(err, k) }

var (
	ErrOutOfMemory         = &Kind{"out-of-memory"}
	ErrIOError             = &Kind{"io-error"}
	ErrBadState            = &Kind{"bad-state"}
	ErrInvalidArgument     = &Kind{"invalid-argument"}
	ErrReadOnly            = &Kind{"read-only"}
	ErrCorruptJournal      = &Kind{"corrupt-journal"}
	ErrNoSpace             = &Kind{"no-space"}
	ErrVolumeOverflow      = &Kind{"volume-overflow"}
	ErrLockError           = &Kind{"lock-error"}
	ErrComponentBusy       = &Kind{"component-busy"}
	ErrInvalidAdminState   = &Kind{"invalid-admin-state"}
	ErrBadConfiguration    = &Kind{"bad-configuration"}
	ErrNoThreads           = &Kind{"no-threads"}
	ErrOutOfRange          = &Kind{"out-of-range"}
)

// New and Wrap re-export cockroachdb/errors' unadorned constructors for
// call sites that don't need a specific Kind (mirrors pebble's direct use
// of errors.New()/errors.Wrap() throughout its tree).
func New(msg string) error                              { return errors.New(msg) }
func Errorf(format string, args ...any) error            { return errors.Errorf(format, args...) }
func Wrap(err error, msg string) error                   { return errors.Wrap(err, msg) }
func Wrapf(err error, format string, args ...any) error  { return errors.Wrapf(err, format, args...) }
func Is(err, target error) bool                          { return errors.Is(err, target) }
func As(err error, target any) bool                      { return errors.As(err, target) }
