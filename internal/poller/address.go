package poller

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// NormalizeAddress trims an operator-entered server address and checks that
// it can be polled.
//
// Addresses are usually bare "host:port" strings. An explicit "http://" or
// "https://" prefix is kept so that TLS servers can be listed; trailing
// slashes are removed.
func NormalizeAddress(raw string) (string, error) {
	addr := strings.TrimRight(strings.TrimSpace(raw), "/")
	if addr == "" {
		return "", errors.New("server address cannot be empty")
	}
	if _, err := BaseURL(addr); err != nil {
		return "", err
	}
	return addr, nil
}

// BaseURL returns the URL prefix that endpoint paths are appended to.
// Bare addresses are polled over plain HTTP.
func BaseURL(addr string) (string, error) {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", addr)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("invalid server address %q: expected host:port", addr)
	}
	return base, nil
}
