package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// FailureClass buckets a failed query-service call for retry decisions.
type FailureClass int

const (
	// FailureService is the default class: malformed responses and
	// unexpected service errors.
	FailureService FailureClass = iota
	// FailureThrottled means the service rejected the call for rate
	// limiting. Counts toward the circuit-open threshold.
	FailureThrottled
	// FailureNetwork covers timeouts, connection failures and DNS
	// errors. Resets the throttle counter (distinct failure class).
	FailureNetwork
	// FailureNotFound means the service reported not-found/forbidden.
	// Never retried.
	FailureNotFound
)

func (c FailureClass) String() string {
	switch c {
	case FailureThrottled:
		return "throttled"
	case FailureNetwork:
		return "network"
	case FailureNotFound:
		return "not_found"
	case FailureService:
		return "service"
	default:
		return "unknown"
	}
}

// IsNetwork returns true if the error (or any error in its chain) looks
// like a network-level failure: timeouts, connection resets, refused
// connections, DNS failures.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range networkPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
