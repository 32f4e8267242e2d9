package httpclient

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreconditionError(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", &PreconditionError{ServiceID: "orders", Required: 3, Available: 2})

	assert.ErrorIs(t, err, ErrPrecondition)
	assert.NotErrorIs(t, err, ErrEmptyCandidateSet)
	assert.EqualError(t, errors.Unwrap(err),
		`httpclient: service "orders" has 2 live instances, hedging requires 3`)
}

func TestCandidateError(t *testing.T) {
	err := &CandidateError{URL: "http://10.0.0.1:8080/orders", Err: syscall.ECONNREFUSED}

	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.NotErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, "httpclient: candidate http://10.0.0.1:8080/orders: connection refused", err.Error())
}
