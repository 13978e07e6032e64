// Package platform holds OS-specific helpers.
package platform

import (
	"errors"
	"strings"
)

// ErrPortBusy indicates another process already drives the serial port.
var ErrPortBusy = errors.New("serial port is in use by another process")

// ErrPortLockUnsupported indicates the current platform has no lock backend implementation.
var ErrPortLockUnsupported = errors.New("port lock unsupported")

// PortLock represents an acquired per-port lock.
type PortLock interface {
	Release() error
}

// AcquirePortLock takes an exclusive, process-scoped lock on port. The lock is
// advisory: it keeps two copies of appID from interleaving frames on one
// device, not other programs.
func AcquirePortLock(appID, port string) (PortLock, error) {
	return acquirePortLock(
		normalizeLockComponent(appID, "app"),
		normalizeLockComponent(port, "port"),
	)
}

func normalizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return fallback
	}

	return normalized
}
