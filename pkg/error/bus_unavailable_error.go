package error

import "net/http"

type BusUnavailableError string

func (err BusUnavailableError) Error() string {
	return string(err)
}

func (err BusUnavailableError) ErrCode() string {
	return "BUS_UNAVAILABLE"
}

func (err BusUnavailableError) StatusCode() int {
	return http.StatusServiceUnavailable
}
