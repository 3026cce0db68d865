package client

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies backend failures so callers can pick a retry
// policy without string-matching error text.
type ErrorKind string

const (
	// KindConnectivity: backend unreachable. Health probes absorb
	// these into a false return; everywhere else they propagate.
	KindConnectivity ErrorKind = "connectivity"
	// KindSubmission: the request itself was rejected or the response
	// lacked an expected job token. Never absorbed.
	KindSubmission ErrorKind = "submission"
	// KindTimeout: the polling deadline elapsed before a terminal
	// success record appeared.
	KindTimeout ErrorKind = "timeout"
	// KindDownload: a single artifact fetch failed. Batches collect
	// these and continue.
	KindDownload ErrorKind = "download"
	// KindIO: local filesystem failure (template load, output dir).
	KindIO ErrorKind = "io"
)

// BackendError carries the failure kind alongside the wrapped cause.
type BackendError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendErr(kind ErrorKind, op string, err error) *BackendError {
	return &BackendError{Kind: kind, Op: op, Err: err}
}

// WaitTimeout builds the error a caller reports when a polling
// deadline elapses without a terminal result.
func WaitTimeout(op string, wait time.Duration) *BackendError {
	return backendErr(KindTimeout, op, fmt.Errorf("no result after %s", wait))
}

// KindOf extracts the error kind, or "" for untagged errors.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsTimeout reports whether err is a polling-deadline failure.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}
