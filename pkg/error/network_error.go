package error

import "net/http"

type NetworkError string

func (err NetworkError) Error() string {
	return string(err)
}

func (err NetworkError) ErrCode() string {
	return "NETWORK_ERROR"
}

func (err NetworkError) StatusCode() int {
	return http.StatusBadGateway
}

type TimeoutError string

func (err TimeoutError) Error() string {
	return string(err)
}

func (err TimeoutError) ErrCode() string {
	return "TIMEOUT"
}

func (err TimeoutError) StatusCode() int {
	return http.StatusGatewayTimeout
}
