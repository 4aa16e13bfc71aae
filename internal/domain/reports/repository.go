package reports

import (
	"context"
	"time"

	"canteiro/internal/core/id"
)

// Repository defines report aggregate access.
type Repository interface {
	// TypeTotals sums movement quantities per group and type in [From, To).
	TypeTotals(ctx context.Context, filter SummaryFilter) ([]TypeTotal, error)

	// FirstEntries returns the earliest entry time of each material that has one.
	FirstEntries(ctx context.Context, materialIDs []id.ID) (map[id.ID]time.Time, error)
}

// Cache scopes. Writes bump ScopeAll and every touched project.
const ScopeAll = "all"

// ProjectScope is the cache scope of one project.
func ProjectScope(projectID id.ID) string { return "project:" + projectID.String() }

// Cache stores report results under versioned keys.
type Cache interface {
	// BuildKey composes a key that changes whenever any of scopes is bumped.
	BuildKey(ctx context.Context, scopes []string, parts ...string) (string, error)
	// FetchJSON loads key into dest, filling it from loader on a miss.
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}
