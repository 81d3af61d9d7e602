package error

// GenericError is implemented by every error kind in this package so the
// REST layer can map any of them to an HTTP status and stable code.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
