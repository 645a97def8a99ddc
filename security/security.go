package security

import (
	"net/http"
)

var sensitiveHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"X-CSRF-Token",
}

// SanitizeHeaders returns a copy of headers without credentials.
func SanitizeHeaders(headers http.Header) http.Header {
	out := http.Header{}
	for k, v := range headers {
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	for _, header := range sensitiveHeaders {
		out.Del(header)
	}
	return out
}
