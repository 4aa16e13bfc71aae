package reports

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/domain"
)

// Config tunes report queries.
type Config struct {
	// TimelinePageSize is the keyset page size used by TimelineFor.
	TimelinePageSize int
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{TimelinePageSize: 200}
}

// Service provides report generation operations.
type Service struct {
	repo        Repository
	materials   domain.MaterialRepository
	movements   domain.MovementRepository
	allocations domain.AllocationRepository
	cache       Cache
	cfg         Config
	now         func() time.Time
}

// NewService creates the reports service. cache may be nil.
func NewService(
	repo Repository,
	materials domain.MaterialRepository,
	movements domain.MovementRepository,
	allocations domain.AllocationRepository,
	cache Cache,
	cfg Config,
) *Service {
	if cfg.TimelinePageSize <= 0 {
		cfg.TimelinePageSize = DefaultConfig().TimelinePageSize
	}
	return &Service{
		repo:        repo,
		materials:   materials,
		movements:   movements,
		allocations: allocations,
		cache:       cache,
		cfg:         cfg,
		now:         time.Now,
	}
}

// cached serves load through the report cache when one is configured.
func cached[T any](ctx context.Context, c Cache, scopes []string, parts []string, load func(context.Context) (*T, error)) (*T, error) {
	if c == nil {
		return load(ctx)
	}
	key, err := c.BuildKey(ctx, scopes, parts...)
	if err != nil {
		return nil, fmt.Errorf("build report cache key: %w", err)
	}
	var out T
	err = c.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PeriodSummary sums movement quantities in [From, To) per material or time bucket.
func (s *Service) PeriodSummary(ctx context.Context, filter SummaryFilter) (*PeriodSummary, error) {
	if filter.GroupBy == "" {
		filter.GroupBy = GroupByMaterial
	}
	if !filter.GroupBy.Valid() {
		return nil, apperror.NewValidation("groupBy must be one of: material day week month").
			WithDetail("groupBy", string(filter.GroupBy))
	}
	if filter.From.IsZero() || filter.To.IsZero() {
		return nil, apperror.NewValidation("from and to are required")
	}
	if !filter.From.Before(filter.To) {
		return nil, apperror.NewValidation("from must be before to").
			WithDetail("from", filter.From).
			WithDetail("to", filter.To)
	}
	filter.From, filter.To = filter.From.UTC(), filter.To.UTC()

	parts := append([]string{"summary"}, filter.cacheParts()...)
	return cached(ctx, s.cache, []string{ScopeAll}, parts, func(ctx context.Context) (*PeriodSummary, error) {
		return s.buildSummary(ctx, filter)
	})
}

func (s *Service) buildSummary(ctx context.Context, filter SummaryFilter) (*PeriodSummary, error) {
	totals, err := s.repo.TypeTotals(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("sum movements: %w", err)
	}

	out := &PeriodSummary{From: filter.From, To: filter.To, GroupBy: filter.GroupBy, Rows: []SummaryRow{}}
	index := make(map[string]int)
	for _, t := range totals {
		var key string
		if filter.GroupBy.IsTimeBucket() {
			key = bucketKey(t.Bucket, filter.GroupBy)
		} else {
			key = t.MaterialID.String()
		}

		i, ok := index[key]
		if !ok {
			row := SummaryRow{Key: key}
			if filter.GroupBy.IsTimeBucket() {
				start := t.Bucket.UTC()
				row.BucketStart = &start
			} else {
				materialID := t.MaterialID
				row.MaterialID = &materialID
			}
			i = len(out.Rows)
			index[key] = i
			out.Rows = append(out.Rows, row)
		}
		out.Rows[i].Add(t.Type, t.Quantity)
		out.Totals.Add(t.Type, t.Quantity)
	}

	if filter.GroupBy.IsTimeBucket() {
		slices.SortFunc(out.Rows, func(a, b SummaryRow) int { return a.BucketStart.Compare(*b.BucketStart) })
		return out, nil
	}

	for i := range out.Rows {
		m, err := s.materials.Get(ctx, *out.Rows[i].MaterialID)
		if err != nil {
			return nil, err
		}
		out.Rows[i].MaterialCode = m.Code
		out.Rows[i].MaterialName = m.Name
		out.Rows[i].Unit = m.Unit
	}
	slices.SortFunc(out.Rows, func(a, b SummaryRow) int { return cmp.Compare(a.MaterialCode, b.MaterialCode) })
	return out, nil
}

// ConsumptionGuide lists every allocation of a project grouped by material.
func (s *Service) ConsumptionGuide(ctx context.Context, projectID id.ID) (*ConsumptionGuide, error) {
	if id.IsNil(projectID) {
		return nil, apperror.NewValidation("projectId is required").WithDetail("field", "projectId")
	}
	parts := []string{"guide", projectID.String()}
	return cached(ctx, s.cache, []string{ProjectScope(projectID)}, parts, func(ctx context.Context) (*ConsumptionGuide, error) {
		return s.buildGuide(ctx, projectID)
	})
}

func (s *Service) buildGuide(ctx context.Context, projectID id.ID) (*ConsumptionGuide, error) {
	allocations, err := s.allocations.List(ctx, domain.AllocationFilter{ProjectID: &projectID})
	if err != nil {
		return nil, fmt.Errorf("list project allocations: %w", err)
	}
	// A transfer-out is a return on its source allocation.
	movements, err := s.movements.List(ctx, domain.MovementFilter{
		ProjectScope: &projectID,
		Types:        []entity.MovementType{entity.MovementConsumption, entity.MovementReturn, entity.MovementTransfer},
	})
	if err != nil {
		return nil, fmt.Errorf("list project movements: %w", err)
	}

	consumed := make(map[id.ID]bool)
	returned := make(map[id.ID]bool)
	for _, m := range movements {
		if m.AllocationID == nil {
			continue
		}
		if m.Type == entity.MovementConsumption {
			consumed[*m.AllocationID] = true
		} else {
			returned[*m.AllocationID] = true
		}
	}

	var materialIDs []id.ID
	groups := make(map[id.ID]*GuideMaterial)
	for _, a := range allocations {
		if _, ok := groups[a.MaterialID]; ok {
			continue
		}
		m, err := s.materials.Get(ctx, a.MaterialID)
		if err != nil {
			return nil, err
		}
		groups[a.MaterialID] = &GuideMaterial{MaterialID: m.ID, Code: m.Code, Name: m.Name, Unit: m.Unit}
		materialIDs = append(materialIDs, a.MaterialID)
	}

	firstEntries, err := s.repo.FirstEntries(ctx, materialIDs)
	if err != nil {
		return nil, fmt.Errorf("load first entries: %w", err)
	}

	guide := &ConsumptionGuide{ProjectID: projectID, GeneratedAt: s.now().UTC(), Materials: []GuideMaterial{}}
	for _, a := range allocations {
		first, hadEntry := firstEntries[a.MaterialID]
		line := GuideLine{
			AllocationID:     a.ID,
			StageID:          a.StageID,
			SourceMovementID: a.SourceMovementID,
			Allocated:        a.QuantityAllocated,
			Consumed:         a.QuantityConsumed,
			Returned:         a.QuantityReturned,
			Pending:          a.Pending(),
			Status:           a.Status,
			CreatedAt:        a.CreatedAt,
			Markers: GuideMarkers{
				HadEntry:       hadEntry && !first.After(a.CreatedAt),
				HadConsumption: consumed[a.ID],
				HadReturn:      returned[a.ID],
				IsPending:      a.Pending().IsPositive(),
			},
		}
		g := groups[a.MaterialID]
		g.Lines = append(g.Lines, line)
		g.Subtotal.add(line)
		guide.Totals.add(line)
		if line.Markers.IsPending {
			guide.PendingAllocations++
		}
	}

	for _, materialID := range materialIDs {
		guide.Materials = append(guide.Materials, *groups[materialID])
	}
	slices.SortFunc(guide.Materials, func(a, b GuideMaterial) int { return cmp.Compare(a.Code, b.Code) })
	return guide, nil
}
