// Package sentinel defines the failure kinds a screening call can end with.
//
// Every error returned by the screener packages wraps exactly one of these,
// so callers branch with errors.Is:
//   - ErrInvalidArgument: criteria missing or rejected before any network call
//   - ErrConnectivity: a page request returned a non-success status
//   - ErrDecoding: a page body or a hit could not be decoded
package sentinel

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConnectivity    = errors.New("connectivity error")
	ErrDecoding        = errors.New("decoding failure")
)
