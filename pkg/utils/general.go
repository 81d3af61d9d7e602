package utils

// PanicIfNeeded panics with the given error so the recovery middleware can
// translate it into the JSON envelope.
func PanicIfNeeded(err interface{}, message ...string) {
	if err != nil {
		if len(message) > 0 {
			panic(message[0])
		}
		panic(err)
	}
}
