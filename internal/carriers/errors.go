package carriers

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCarrier is returned when no tracker is registered under a name
	ErrUnknownCarrier = errors.New("unknown carrier")
	// ErrInvalidArgument is returned for malformed caller input
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrFetch wraps any failure of the fetch provider
	ErrFetch = errors.New("fetch failed")
	// ErrParse is returned when the carrier response lacks the expected structure
	ErrParse = errors.New("unable to parse tracking data")
	// ErrDecode is returned when a structured response cannot be decoded
	ErrDecode = errors.New("unable to decode response")
)

// CarrierError carries the carrier and tracking number a failure belongs to.
// Kind is one of the sentinel errors above so callers can use errors.Is.
type CarrierError struct {
	Carrier        string
	TrackingNumber string
	Kind           error
	Message        string
	Err            error
}

func (e *CarrierError) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.TrackingNumber != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.TrackingNumber)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return e.Carrier + ": " + msg
}

func (e *CarrierError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func parseError(c *Call, format string, args ...any) error {
	return &CarrierError{
		Carrier:        c.Carrier,
		TrackingNumber: c.Number,
		Kind:           ErrParse,
		Message:        fmt.Sprintf(format, args...),
	}
}

func decodeError(c *Call, err error) error {
	return &CarrierError{
		Carrier:        c.Carrier,
		TrackingNumber: c.Number,
		Kind:           ErrDecode,
		Message:        "unable to decode response",
		Err:            err,
	}
}

func fetchError(c *Call, err error) error {
	return &CarrierError{
		Carrier:        c.Carrier,
		TrackingNumber: c.Number,
		Kind:           ErrFetch,
		Message:        "could not fetch tracking data",
		Err:            err,
	}
}
