// Package flowstore persists per-user flow records.
//
// Each user has at most one record; Put replaces any existing record for
// the same user, and SetCollected writes a single collected attribute as
// an atomic field update.
package flowstore

import (
	"context"
	"errors"
	"time"

	"github.com/Osangy/api-sub000/internal/models"
)

// ErrUnavailable wraps backend failures so callers can distinguish a store
// outage from an absent record.
var ErrUnavailable = errors.New("flow store unavailable")

// DefaultFlowTTL bounds how long an abandoned flow survives. Every write
// refreshes it.
const DefaultFlowTTL = 24 * time.Hour

// Repository is the flow persistence contract. Get returns (nil, nil) when
// the user has no active flow; absence is not an error.
type Repository interface {
	Get(ctx context.Context, userID string) (*models.FlowRecord, error)
	Put(ctx context.Context, record *models.FlowRecord) error
	SetCollected(ctx context.Context, userID, attribute, value string) error
	Delete(ctx context.Context, userID string) error
}
