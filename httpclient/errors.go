package httpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition matches every *PreconditionError via errors.Is.
	ErrPrecondition = errors.New("httpclient: hedge precondition failed")

	// ErrEmptyCandidateSet is returned when the selection loop ends without a
	// single candidate, e.g. with Attempts == 0.
	ErrEmptyCandidateSet = errors.New("httpclient: empty hedge candidate set")

	// ErrNoServiceID is returned when a hedged request has no host to resolve.
	ErrNoServiceID = errors.New("httpclient: request URL has no service id")
)

// PreconditionError reports that the fleet is smaller than the requested
// hedge factor. No request was sent. Retrying does not help: the caller asked
// for more distinct backends than the service has.
type PreconditionError struct {
	ServiceID string
	Required  int
	Available int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf(
		"httpclient: service %q has %d live instances, hedging requires %d",
		e.ServiceID, e.Available, e.Required,
	)
}

// Is makes errors.Is(err, ErrPrecondition) true.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// CandidateError wraps the transport error of the candidate that finished
// first when that candidate failed.
type CandidateError struct {
	// URL is the concrete URL the candidate was sent to.
	URL string
	Err error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("httpclient: candidate %s: %v", e.URL, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}
