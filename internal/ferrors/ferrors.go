// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package ferrors defines the fixed error taxonomy every layer of the
// pipeline maps external failures into. Nothing bubbles up raw past a
// lane or the orchestrator boundary.
package ferrors

// Kind is one of the fixed taxonomy values. New values are never added
// ad hoc by callers; they are declared here.
type Kind string

const (
	InputInvalid       Kind = "input_invalid"
	BackendUnavailable Kind = "backend_unavailable"
	LaneTimeout        Kind = "lane_timeout"
	LaneError          Kind = "lane_error"
	SynthesisFailed    Kind = "synthesis_failed"
	GlobalDeadline     Kind = "global_deadline"
	Cancelled          Kind = "cancelled"
	InternalError      Kind = "internal_error"

	// NetworkError, RateLimited, AuthFailed and Empty are lane-local
	// failure reasons that the lane framework maps onto LaneError or
	// LaneTimeout before they ever cross a lane boundary.
	NetworkError Kind = "network_error"
	RateLimited  Kind = "rate_limited"
	AuthFailed   Kind = "auth_failed"
	Empty        Kind = "empty"
)

// FusionError is the single error type that crosses package boundaries
// in this module. Every layer wraps lower-level errors into one of
// these before returning.
type FusionError struct {
	Kind    Kind
	Op      string // component.operation, e.g. "lanes.web.Run"
	Message string
	Cause   error
}

func (e *FusionError) Error() string {
	if e.Cause != nil {
		return e.Op + ": " + e.Message + " (" + string(e.Kind) + "): " + e.Cause.Error()
	}
	return e.Op + ": " + e.Message + " (" + string(e.Kind) + ")"
}

func (e *FusionError) Unwrap() error {
	return e.Cause
}

// New creates a FusionError of the given kind.
func New(kind Kind, op, message string, cause error) *FusionError {
	return &FusionError{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf extracts the taxonomy Kind from err, defaulting to InternalError
// when err is not a *FusionError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *FusionError
	if As(err, &fe) {
		return fe.Kind
	}
	return InternalError
}

// As walks err's Unwrap chain by hand and stores the first *FusionError
// it finds in target.
func As(err error, target **FusionError) bool {
	for err != nil {
		if fe, ok := err.(*FusionError); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
