package sources

import (
	"context"
	"fmt"

	"github.com/citypulse/backend/internal/models"
)

// ReportReader is the slice of the document store the reports adapter
// needs. Implemented by store.Client.
type ReportReader interface {
	SearchByLocation(ctx context.Context, location, topic string, limit int) ([]models.UserReport, error)
}

// Reports exposes user-submitted reports through the same adapter shape as
// the external sources, so the unified cache treats all four uniformly.
type Reports struct {
	reader ReportReader
}

// NewReports builds the user-report adapter over the document store.
func NewReports(reader ReportReader) *Reports {
	return &Reports{reader: reader}
}

func (r *Reports) Name() models.SourceType { return models.SourceUserReport }

// Fetch returns stored reports for the location.
func (r *Reports) Fetch(ctx context.Context, location, topic string, limit int) ([]models.Record, error) {
	reports, err := r.reader.SearchByLocation(ctx, location, topic, clampLimit(limit, 200))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	records := make([]models.Record, 0, len(reports))
	for _, rep := range reports {
		records = append(records, rep.Record())
	}
	return records, nil
}
