package utils

import (
	"crypto/rand"
	"encoding/hex"
	"net"
)

// ShortID returns an 8 character hex id used to tell connections apart in logs.
func ShortID() string {
	randomBytes := make([]byte, 4)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(randomBytes)
	return hex.EncodeToString(randomBytes)
}

// RemoteHost strips the port from a remote address, falling back to the
// full string for addresses that are not host:port.
func RemoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
