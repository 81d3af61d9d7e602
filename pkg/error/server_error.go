package error

import "net/http"

// ServerError marks an upstream 5xx from the provider or a downstream
// service after retries were exhausted.
type ServerError string

func (err ServerError) Error() string {
	return string(err)
}

func (err ServerError) ErrCode() string {
	return "SERVER_ERROR"
}

func (err ServerError) StatusCode() int {
	return http.StatusBadGateway
}

type InternalServerError string

func (err InternalServerError) Error() string {
	return string(err)
}

func (err InternalServerError) ErrCode() string {
	return "INTERNAL_SERVER_ERROR"
}

func (err InternalServerError) StatusCode() int {
	return http.StatusInternalServerError
}
