// Package export defines the outbound port for record export targets.
package export

import (
	"context"

	"finova/internal/core"
)

// Exporter is the outbound adapter the sync worker writes confirmed records
// to. Append returns an opaque row reference; Remove drops a previously
// exported record by its store id.
type Exporter interface {
	Append(ctx context.Context, kind core.Kind, rec core.Record) (rowRef string, err error)
	Remove(ctx context.Context, recordID string) error
}
