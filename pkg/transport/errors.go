package transport

import "fmt"

// HTTPStatusError is returned when the remote answers with a non-2xx status.
// Body holds the raw response body for diagnostics.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http error: %s: %s", e.Status, e.Body)
}

// ConnectivityError is returned when no response was received at all.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// DecodeError is returned when a 2xx response body is not valid JSON for the
// expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode JSON response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
