package errorsx

import (
	"errors"
	"time"
)

// String allows string constants to be used as sentinel errors.
type String string

func (t String) Error() string {
	return string(t)
}

// Timeout error. The duration is how long was waited before giving up.
type Timeout interface {
	error
	Timedout() time.Duration
}

// Timedout marks cause as a timeout after waiting d.
func Timedout(cause error, d time.Duration) error {
	return timeout{
		error: cause,
		d:     d,
	}
}

type timeout struct {
	error
	d time.Duration
}

func (t timeout) Timedout() time.Duration {
	return t.d
}

func (t timeout) Timeout() bool {
	return true
}

func (t timeout) Unwrap() error {
	return t.error
}

// Compact returns the first error in the set, if any.
func Compact(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// returns nil if the error matches any of the targets
func Ignore(err error, targets ...error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return nil
		}
	}
	return err
}
