package response

// StatusCode represents HTTP status codes
type StatusCode int

const (
	StatusOK       StatusCode = 200
	StatusNotFound StatusCode = 404
)

// statusText maps status codes to reason phrases
var statusText = map[StatusCode]string{
	StatusOK:       "OK",
	StatusNotFound: "Not Found",
}

// StatusText returns the reason phrase for a status code
func StatusText(code StatusCode) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Unknown"
}

// IsClientError returns true for 4xx status codes
func (code StatusCode) IsClientError() bool {
	return code >= 400 && code < 500
}
