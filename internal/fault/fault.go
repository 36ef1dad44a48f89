// Package fault defines the error kinds surfaced by clipflow's core services.
//
// The request layer maps these to transport status codes; core code never
// returns raw low-level errors across the service boundary.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fault for callers.
type Kind int

const (
	// KindValidation is bad caller input (unknown asset reference, malformed
	// recurrence rule, oversized or wrong-type upload). Never retried.
	KindValidation Kind = iota
	// KindProcessing is a transcode failure or timeout, recorded on the asset.
	KindProcessing
	// KindDelivery is a notification send failure. Logged, stats updated,
	// schedule stays active.
	KindDelivery
	// KindNotFound is an unknown asset/schedule id. A normal negative result.
	KindNotFound
	// KindInternal is anything else. Logged with full context, surfaced as a
	// generic failure.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProcessing:
		return "processing"
	case KindDelivery:
		return "delivery"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Fault carries a kind plus a human-readable message.
type Fault struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return f.Msg + ": " + f.Err.Error()
	}
	return f.Msg
}

func (f *Fault) Unwrap() error { return f.Err }

func New(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *Fault { return New(KindValidation, format, args...) }
func NotFound(format string, args ...any) *Fault   { return New(KindNotFound, format, args...) }
func Internal(err error, msg string) *Fault        { return &Fault{Kind: KindInternal, Msg: msg, Err: err} }

// KindOf extracts the fault kind from an error chain.
// Unknown errors classify as internal.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a not-found fault.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is a validation fault.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
