package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// SelectBindAddr returns preferred when it can be listened on. Otherwise,
// with autoFallback, it returns the first free candidate.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	tried := make([]string, 0, len(candidates)+1)
	seen := make(map[string]bool, len(candidates)+1)

	try := func(addr string) (bool, error) {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return false, fmt.Errorf("invalid bind address %q: %w", addr, err)
		}
		seen[addr] = true
		tried = append(tried, addr)
		return IsAddrAvailable(addr)
	}

	if preferred != "" {
		ok, err := try(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
		slog.Warn("preferred bind address in use, trying candidates", "preferred", preferred, "candidates", len(candidates))
	}

	for _, addr := range candidates {
		if seen[addr] {
			continue
		}
		ok, err := try(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	return "", fmt.Errorf("no available bind address (tried %s)", strings.Join(tried, ", "))
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
