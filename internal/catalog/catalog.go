package catalog

import (
	"context"

	"subpromo/internal/cache"
	"subpromo/internal/model"
)

// Entry is one promo code definition read from a catalog source.
type Entry struct {
	Line       int
	Definition model.PromoCodeDefinition
}

// LineError describes a catalog line that could not be imported.
type LineError struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// Batch is the content of one catalog source.
type Batch struct {
	Source  string
	Entries []Entry
	Errors  []LineError
}

// Loader defines the interface for loading catalog sources.
type Loader interface {
	// Load reads a gzipped JSON-lines catalog and returns its entries.
	// Malformed lines are reported in Batch.Errors, not as an error.
	Load(ctx context.Context, source string) (*Batch, error)
}

// Invalidator purges cached data after a promo code changes.
type Invalidator interface {
	Invalidate(ctx context.Context, ev cache.Event) (int, error)
}
