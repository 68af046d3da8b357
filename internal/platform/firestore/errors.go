package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind string

const (
	kindOther         errorKind = "other"
	kindNotFound      errorKind = "not_found"
	kindConflict      errorKind = "conflict"
	kindUnavailable   errorKind = "unavailable"
	kindMisconfigured errorKind = "misconfigured"
)

// Error classifies a failed Firestore read so callers can tell an outage
// from a deployment problem such as a missing index or revoked credentials.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s (%s): %v", e.op, e.kind, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Kind returns the classification label, suitable for log fields.
func (e *Error) Kind() string {
	if e == nil {
		return ""
	}
	return string(e.kind)
}

func (e *Error) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

func (e *Error) IsConflict() bool { return e != nil && e.kind == kindConflict }

// IsUnavailable reports a transient backend failure worth retrying later.
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// IsMisconfigured reports failures that persist until the deployment changes:
// missing composite indexes, permissions or malformed queries.
func (e *Error) IsMisconfigured() bool { return e != nil && e.kind == kindMisconfigured }

func classify(err error) errorKind {
	if errors.Is(err, ErrProviderClosed) {
		return kindUnavailable
	}
	switch status.Code(err) {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.Aborted:
		return kindConflict
	case codes.FailedPrecondition, codes.PermissionDenied, codes.Unauthenticated, codes.InvalidArgument:
		return kindMisconfigured
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Unknown:
		return kindUnavailable
	}
	return kindOther
}

// WrapError annotates Firestore errors with repository semantics. Context
// cancellations and deadlines are passed through unwrapped so the query
// orchestrator can tell a caller timeout from a backend fault.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		if op != "" && existing.op == "" {
			existing.op = op
		}
		return existing
	}
	return &Error{op: op, kind: classify(err), err: err}
}
