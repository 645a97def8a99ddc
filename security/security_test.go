package security

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHeaders(t *testing.T) {
	in := http.Header{}
	in.Set("Authorization", "Bearer secret")
	in.Set("Cookie", "session=1")
	in.Set("User-Agent", "curl/8")

	out := SanitizeHeaders(in)

	assert.Empty(t, out.Get("Authorization"))
	assert.Empty(t, out.Get("Cookie"))
	assert.Equal(t, "curl/8", out.Get("User-Agent"))
	assert.Equal(t, "Bearer secret", in.Get("Authorization"), "input must not be modified")
}
