// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package gateway defines read-only access to live cluster state. The
// engine performs exactly one Snapshot call per invocation; everything
// after that call operates on the returned in-memory value.
package gateway

import (
	"context"

	"github.com/juju/errors"

	"github.com/canonical/juju-verify/core/snapshot"
)

// Scope names the targets of a run so an implementation knows which
// workload detail sections to gather alongside the topology. Exactly one
// of Units or Machines is populated.
type Scope struct {
	Units    []string
	Machines []string
}

// Gateway is the single blocking boundary of a verification run. The
// snapshot must respect the context deadline; on expiry or any transport,
// authentication or malformed-response failure implementations return an
// *Error. Failures are never retried here; the caller re-runs.
type Gateway interface {
	Snapshot(ctx context.Context, scope Scope) (*snapshot.Snapshot, error)
}

// Error marks a failure to obtain cluster state, keeping it distinct from
// user input errors so callers can exit with a dedicated status.
type Error struct {
	cause error
}

// NewError wraps cause as a gateway failure. A nil cause returns nil.
func NewError(cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{cause: cause}
}

// Error is part of the error interface.
func (e *Error) Error() string {
	return "cluster state gateway: " + e.cause.Error()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsGatewayError reports whether err was raised by the gateway boundary.
func IsGatewayError(err error) bool {
	_, ok := errors.Cause(err).(*Error)
	return ok
}
