package error

import "net/http"

// SpamRejectedError maps to 200 because the upstream provider retries
// webhook deliveries on non-2xx responses.
type SpamRejectedError string

func (err SpamRejectedError) Error() string {
	return string(err)
}

func (err SpamRejectedError) ErrCode() string {
	return "SPAM_REJECTED"
}

func (err SpamRejectedError) StatusCode() int {
	return http.StatusOK
}
