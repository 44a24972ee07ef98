// Package capstore defines the capability store consulted by the permission
// guard: a durable mapping from actor identity to granted capability tokens
// and role names. The store is consulted, never owned, by this process.
package capstore

import (
	"context"
)

// CapabilityStore lookups must surface failures as errors, never as a false
// grant, so callers can fail closed.
type CapabilityStore interface {
	HasCapability(ctx context.Context, actorID, token string) (bool, error)
	RolesOf(ctx context.Context, actorID string) ([]string, error)
}
