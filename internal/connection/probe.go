package connection

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// isLoopback reports whether host names this machine.
func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// statusURL maps ws://host:port/... to http://host:port/status.
func statusURL(target *url.URL) string {
	scheme := "http"
	if target.Scheme == "wss" {
		scheme = "https"
	}
	return (&url.URL{Scheme: scheme, Host: target.Host, Path: "/status"}).String()
}

// probe checks that a local backend answers GET /status with a 2xx.
func probe(ctx context.Context, client *http.Client, target *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL(target), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status returned %d", resp.StatusCode)
	}
	return nil
}
