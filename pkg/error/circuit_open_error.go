package error

import "net/http"

// CircuitOpenError is returned while a breaker is failing fast. It must not
// be retried inside the same request.
type CircuitOpenError string

func (err CircuitOpenError) Error() string {
	return string(err)
}

func (err CircuitOpenError) ErrCode() string {
	return "CIRCUIT_OPEN"
}

func (err CircuitOpenError) StatusCode() int {
	return http.StatusServiceUnavailable
}
