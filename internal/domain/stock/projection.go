// Package stock provides the stock projection: the single writer of a material's
// on-hand quantity, always reconcilable by replaying the ledger.
package stock

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/tx"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
	"canteiro/pkg/logger"
)

// Config controls criticality and reconciliation.
type Config struct {
	// DefaultCriticalThreshold applies to materials without their own threshold.
	DefaultCriticalThreshold types.Quantity

	// Concurrency bounds ReconcileAll.
	Concurrency int
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		DefaultCriticalThreshold: types.NewQuantity(10),
		Concurrency:              4,
	}
}

// Projection maintains materials.stock_qty.
type Projection struct {
	materials domain.MaterialRepository
	movements domain.MovementRepository
	txManager tx.Manager
	recorder  domain.Recorder
	cfg       Config
	now       func() time.Time
}

// NewProjection creates the stock projection. recorder may be nil.
func NewProjection(
	materials domain.MaterialRepository,
	movements domain.MovementRepository,
	txManager tx.Manager,
	recorder domain.Recorder,
	cfg Config,
) *Projection {
	if recorder == nil {
		recorder = domain.NopRecorder{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Projection{
		materials: materials,
		movements: movements,
		txManager: txManager,
		recorder:  recorder,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Lock reads the material and holds its row lock for the rest of the
// transaction. Stock checks made after Lock stay valid until commit.
func (p *Projection) Lock(ctx context.Context, materialID id.ID) (*entity.Material, error) {
	m, err := p.materials.GetForUpdate(ctx, materialID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Apply adds effect to the material's stock and returns the new value.
// Must run inside the transaction that inserted the movement.
func (p *Projection) Apply(ctx context.Context, materialID id.ID, effect types.Quantity) (types.Quantity, error) {
	m, err := p.Lock(ctx, materialID)
	if err != nil {
		return 0, err
	}
	if effect.IsZero() {
		return m.StockQuantity, nil
	}

	next, ok := m.StockQuantity.Add(effect)
	if !ok {
		return 0, apperror.NewValidation("stock would exceed the maximum quantity").
			WithDetail("materialId", materialID.String()).
			WithDetail("stock", m.StockQuantity.String()).
			WithDetail("quantity", effect.Abs().String()).
			WithDetail("max", types.MaxQuantity.String())
	}
	if next.IsNegative() {
		return 0, apperror.NewInsufficientStock(materialID.String(), effect.Neg(), m.StockQuantity)
	}
	if err := p.materials.SetStock(ctx, materialID, next, p.now()); err != nil {
		return 0, fmt.Errorf("set stock: %w", err)
	}
	return next, nil
}

// CurrentStock returns the denormalized on-hand quantity.
func (p *Projection) CurrentStock(ctx context.Context, materialID id.ID) (types.Quantity, error) {
	m, err := p.materials.Get(ctx, materialID)
	if err != nil {
		return 0, err
	}
	return m.StockQuantity, nil
}

// ReplayStock recomputes on-hand quantity from the ledger alone.
func (p *Projection) ReplayStock(ctx context.Context, materialID id.ID) (types.Quantity, error) {
	if _, err := p.materials.Get(ctx, materialID); err != nil {
		return 0, err
	}
	sum, err := p.movements.SumStockEffect(ctx, materialID)
	if err != nil {
		return 0, fmt.Errorf("replay ledger: %w", err)
	}
	return sum, nil
}

// Criticality reports a material against its low-water mark.
type Criticality struct {
	Material  entity.Material `json:"material"`
	Stock     types.Quantity  `json:"stock"`
	Threshold types.Quantity  `json:"threshold"`
	Critical  bool            `json:"critical"`
}

func (p *Projection) assess(m entity.Material) Criticality {
	threshold := m.Threshold(p.cfg.DefaultCriticalThreshold)
	return Criticality{
		Material:  m,
		Stock:     m.StockQuantity,
		Threshold: threshold,
		Critical:  m.StockQuantity < threshold,
	}
}

// IsCritical reports whether stock is below the material's threshold.
// It never blocks operations.
func (p *Projection) IsCritical(ctx context.Context, materialID id.ID) (*Criticality, error) {
	m, err := p.materials.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	c := p.assess(*m)
	return &c, nil
}

// ListCritical returns every material below its threshold.
func (p *Projection) ListCritical(ctx context.Context) ([]Criticality, error) {
	materials, err := p.materials.List(ctx, domain.MaterialFilter{})
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	out := make([]Criticality, 0)
	for _, m := range materials {
		if c := p.assess(m); c.Critical {
			out = append(out, c)
		}
	}
	return out, nil
}

// Reconciliation compares stored stock with the ledger replay.
type Reconciliation struct {
	MaterialID id.ID          `json:"materialId"`
	Stored     types.Quantity `json:"stored"`
	Replayed   types.Quantity `json:"replayed"`
	Drift      types.Quantity `json:"drift"`
	Repaired   bool           `json:"repaired"`
}

// Drifted reports whether stored and replayed stock differ.
func (r *Reconciliation) Drifted() bool { return !r.Drift.IsZero() }

// Reconcile replays the ledger for one material. With repair set, a drifted
// stored value is overwritten by the replayed one.
func (p *Projection) Reconcile(ctx context.Context, materialID id.ID, repair bool) (*Reconciliation, error) {
	var res Reconciliation
	err := p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		m, err := p.Lock(ctx, materialID)
		if err != nil {
			return err
		}
		replayed, err := p.movements.SumStockEffect(ctx, materialID)
		if err != nil {
			return fmt.Errorf("replay ledger: %w", err)
		}

		res = Reconciliation{
			MaterialID: materialID,
			Stored:     m.StockQuantity,
			Replayed:   replayed,
			Drift:      m.StockQuantity - replayed,
		}
		if !res.Drifted() || !repair {
			return nil
		}
		if replayed.IsNegative() {
			return fmt.Errorf("material %s: ledger replays to negative stock %s", materialID, replayed)
		}
		if err := p.materials.SetStock(ctx, materialID, replayed, p.now()); err != nil {
			return fmt.Errorf("repair stock: %w", err)
		}
		res.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Drifted() {
		p.recorder.DriftDetected("stock")
		logger.Warn(ctx, "stock drift detected",
			"material_id", materialID,
			"stored", res.Stored,
			"replayed", res.Replayed,
			"repaired", res.Repaired,
		)
	}
	return &res, nil
}

// Summary aggregates a reconciliation run.
type Summary struct {
	Checked  int `json:"checked"`
	Drifted  int `json:"drifted"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// ReconcileAll reconciles every material with bounded concurrency. Failures
// on single materials are logged and counted; only listing errors abort.
func (p *Projection) ReconcileAll(ctx context.Context, repair bool) (*Summary, error) {
	ids, err := p.materials.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}

	results := make([]*Reconciliation, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, materialID := range ids {
		g.Go(func() error {
			res, err := p.Reconcile(gctx, materialID, repair)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Error(gctx, "stock reconciliation failed", "material_id", materialID, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &Summary{Checked: len(ids)}
	for _, r := range results {
		switch {
		case r == nil:
			sum.Failed++
		case r.Repaired:
			sum.Drifted++
			sum.Repaired++
		case r.Drifted():
			sum.Drifted++
		}
	}
	logger.Info(ctx, "stock reconciliation finished",
		"checked", sum.Checked, "drifted", sum.Drifted, "repaired", sum.Repaired, "failed", sum.Failed)
	return sum, nil
}
