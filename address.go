package gpuboard

import "github.com/jpalmerr/gpuboard/internal/poller"

// NormalizeAddress trims an operator-entered server address and checks that
// it can be polled.
//
// Addresses are "host:port" strings such as "10.0.0.5:8188". An explicit
// "http://" or "https://" prefix is accepted for servers behind TLS; paths,
// queries and fragments are rejected. Trailing slashes are removed.
func NormalizeAddress(raw string) (string, error) {
	return poller.NormalizeAddress(raw)
}
