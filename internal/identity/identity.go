// Package identity provides device identity validation and session ID
// minting. Devices carry a stable self-assigned ID; there is no account
// system.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidDeviceID reports whether a device ID is well formed. IDs are
// embedded in store keys and queue names, so the charset is restricted.
func ValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

// NewSessionID mints a unique session ID for a device connection. The
// device and timestamp are kept readable for log correlation.
func NewSessionID(deviceID string) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return fmt.Sprintf("session_%s_%d_%s", deviceID, time.Now().Unix(), hex.EncodeToString(buf)), nil
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
