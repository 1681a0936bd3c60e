package rpc

import (
	"crypto/rand"
	"net/http"
	"strings"

	"github.com/mr-tron/base58"
)

const maxRequestIDLen = 64

// requestID returns the caller's X-Request-Id when it is usable, otherwise a
// fresh base58 identifier.
func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" && len(id) <= maxRequestIDLen && isPrintableASCII(id) {
		return id
	}
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "req_unknown"
	}
	return "req_" + base58.Encode(buf)
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
