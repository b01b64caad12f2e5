// Package sources holds the stateless adapters around external signals.
// Each adapter is side-effect free beyond its own I/O and may fail
// independently; the unified cache decides what a failure means.
package sources

import (
	"context"
	"errors"

	"github.com/citypulse/backend/internal/models"
)

// ErrUnavailable covers transport errors, timeouts and upstream quota
// responses. The cache absorbs it into a stale-data or empty result.
var ErrUnavailable = errors.New("source unavailable")

// Adapter is one external data provider.
type Adapter interface {
	Name() models.SourceType
	Fetch(ctx context.Context, location, topic string, limit int) ([]models.Record, error)
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return max
	}
	if limit > max {
		return max
	}
	return limit
}
