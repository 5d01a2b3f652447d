// Package intent resolves the caller's analysis goal by running several
// independent extraction methods and aggregating their votes into a single
// weighted consensus.
package intent

import (
	"context"

	"github.com/swetaais/analysis-agent/internal/models"
)

// Request carries what the extraction methods get to see: the natural
// language task and a sample of the data to be analyzed.
type Request struct {
	Text string
	Data []map[string]interface{}
}

// Method is one independent intent extraction strategy. Attempt returns a
// nil vote without error when the method declines (no confident reading).
// Errors are recorded by the resolver but never fail the resolution.
type Method interface {
	Name() models.ExtractionMethod
	Attempt(ctx context.Context, req Request) (*models.ExtractionVote, error)
}
