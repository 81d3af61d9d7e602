package utils

// ResponseData is the JSON envelope returned by every REST endpoint.
type ResponseData struct {
	Status  int         `json:"status"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Results interface{} `json:"results,omitempty"`
}
