// Package transport performs the single HTTP GET behind each jurisdiction
// request and classifies every failure into a typed cause. It never retries.
package transport

import (
	"context"
	"errors"

	"github.com/sells-group/parcel-cli/internal/model"
)

// Client issues one request for a resolved descriptor. Implementations must
// honour ctx cancellation and report every failure through RawResponse.Err
// rather than a separate error return.
type Client interface {
	Get(ctx context.Context, d model.RequestDescriptor) model.RawResponse
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, d model.RequestDescriptor) model.RawResponse

// Get calls f.
func (f ClientFunc) Get(ctx context.Context, d model.RequestDescriptor) model.RawResponse {
	return f(ctx, d)
}

// Cause classifies why an endpoint call produced no usable body.
type Cause string

const (
	CauseNone        Cause = ""
	CauseTimeout     Cause = "timeout"
	CauseNetwork     Cause = "network"
	CauseStatus      Cause = "status"
	CauseMalformed   Cause = "malformed"
	CauseCircuitOpen Cause = "circuit_open"
	CauseCancelled   Cause = "cancelled"
)

// FetchError is the typed failure attached to a RawResponse.
type FetchError struct {
	Cause      Cause
	StatusCode int
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return string(e.Cause) + ": " + e.URL
	}
	return string(e.Cause) + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CauseOf extracts the failure cause from an error chain. Errors that are not
// a FetchError are reported as network failures.
func CauseOf(err error) Cause {
	if err == nil {
		return CauseNone
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Cause
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CauseCancelled
	}
	return CauseNetwork
}

// Failure builds a failed RawResponse for a descriptor.
func Failure(d model.RequestDescriptor, cause Cause, err error) model.RawResponse {
	return model.RawResponse{
		JurisdictionID: d.JurisdictionID,
		URL:            d.URL,
		Err:            &FetchError{Cause: cause, URL: d.URL, Err: err},
	}
}
