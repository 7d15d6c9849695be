package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ClientInfo identifies the caller behind a request.
type ClientInfo struct {
	RequestID string
	DeviceID  string
	IP        string
}

// ClientInfoFromRequest extracts caller identification headers.
// A request id is generated when the caller did not send one.
func ClientInfoFromRequest(r *http.Request) ClientInfo {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return ClientInfo{
		RequestID: requestID,
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
