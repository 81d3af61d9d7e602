package error

import "net/http"

// DuplicateMessageError signals that a message_id was already stored.
// Ingest treats it as an idempotent no-op, never as a failure.
type DuplicateMessageError string

func (err DuplicateMessageError) Error() string {
	return string(err)
}

func (err DuplicateMessageError) ErrCode() string {
	return "DUPLICATE_MESSAGE"
}

func (err DuplicateMessageError) StatusCode() int {
	return http.StatusOK
}
