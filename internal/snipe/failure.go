package snipe

import (
	"errors"
	"fmt"
)

// FailureKind separates attempts that could not run to completion from
// attempts that ran but found nothing usable.
type FailureKind int

const (
	// KindInfrastructure means the attempt itself was aborted: it panicked,
	// timed out, or was never launched.
	KindInfrastructure FailureKind = iota + 1
	// KindDomain means the probe completed but Resy had no usable result.
	KindDomain
)

func (k FailureKind) String() string {
	switch k {
	case KindInfrastructure:
		return "infrastructure"
	case KindDomain:
		return "domain"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Failure is the error recorded for an unsuccessful attempt.
type Failure struct {
	Kind FailureKind
	Msg  string
	Err  error
}

func (f *Failure) Error() string {
	switch {
	case f.Msg != "" && f.Err != nil:
		return f.Msg + ": " + f.Err.Error()
	case f.Err != nil:
		return f.Err.Error()
	case f.Msg != "":
		return f.Msg
	default:
		return f.Kind.String() + " failure"
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Domain wraps a probe error as a domain failure.
func Domain(err error) *Failure {
	return &Failure{Kind: KindDomain, Err: err}
}

// Infrastructuref builds an infrastructure failure with a formatted message.
func Infrastructuref(format string, args ...any) *Failure {
	return &Failure{Kind: KindInfrastructure, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err carries a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// classify maps a probe error onto the two failure kinds. Plain errors are
// domain failures; a *Failure returned by the probe keeps its kind.
func classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		if f.Kind != KindInfrastructure && f.Kind != KindDomain {
			return &Failure{Kind: KindDomain, Msg: f.Msg, Err: f.Err}
		}
		return f
	}
	return Domain(err)
}
