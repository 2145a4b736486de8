package health

import (
	"context"
	"net"
	"net/http"
	"time"
)

// HTTPChecker sends a GET and accepts a status code range, 200-399 by
// default. Used for the Prometheus /-/healthy route.
type HTTPChecker struct {
	URL    string
	Min    int
	Max    int
	Client *http.Client
}

// NewHTTPChecker creates an HTTP checker for url
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{URL: url, Min: 200, Max: 399, Client: http.DefaultClient}
}

// WithStatusRange sets the accepted status codes
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.Min, h.Max = min, max
	return h
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return result(start, false, "failed to create request: %v", err)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return result(start, false, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < h.Min || resp.StatusCode > h.Max {
		return result(start, false, "HTTP %d (expected %d-%d)", resp.StatusCode, h.Min, h.Max)
	}
	return result(start, true, "HTTP %d", resp.StatusCode)
}

func (h *HTTPChecker) Type() CheckType { return CheckTypeHTTP }

// TCPChecker dials an address and hangs up. Used for etcd endpoints.
type TCPChecker struct {
	Address string
}

// NewTCPChecker creates a TCP checker for a host:port address
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address}
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return result(start, false, "connection failed: %v", err)
	}
	_ = conn.Close()
	return result(start, true, "connected to %s", t.Address)
}

func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }
