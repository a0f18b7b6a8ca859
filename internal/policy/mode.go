// Package policy defines guardrails for console mutations.
package policy

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ModeReadOnly shows lists but refuses create, update and delete.
	ModeReadOnly = "read-only"
	// ModeReadWrite allows every action.
	ModeReadWrite = "read-write"
)

// ErrReadOnly is wrapped by AuthorizeMutation in read-only mode.
var ErrReadOnly = errors.New("console is read-only")

// Guard enforces mode-based mutation policy.
type Guard struct {
	mode string
}

// NewGuard validates mode configuration and returns a guard.
func NewGuard(mode string) (*Guard, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		normalized = ModeReadWrite
	}

	switch normalized {
	case ModeReadOnly, ModeReadWrite:
		return &Guard{mode: normalized}, nil
	default:
		return nil, fmt.Errorf("invalid mode %q (allowed: %s|%s)", normalized, ModeReadOnly, ModeReadWrite)
	}
}

// Mode returns the resolved mode.
func (g *Guard) Mode() string {
	if g == nil {
		return ModeReadWrite
	}
	return g.mode
}

// CanWrite reports whether mutations are allowed; templates use it to hide actions.
func (g *Guard) CanWrite() bool {
	return g.Mode() == ModeReadWrite
}

// AuthorizeMutation allows or denies a create, update or delete.
func (g *Guard) AuthorizeMutation(resource, action string) error {
	if g.CanWrite() {
		return nil
	}
	name := strings.TrimSpace(resource)
	if name == "" {
		name = "unknown"
	}
	return fmt.Errorf("%s %s requires %s mode: %w", action, name, ModeReadWrite, ErrReadOnly)
}
