// Package jobs runs ledger-first reconciliation in the background on asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"canteiro/internal/domain/allocation"
	"canteiro/internal/domain/stock"
	"canteiro/internal/infrastructure/metrics"
	"canteiro/pkg/logger"
)

const (
	// QueueDefault is the queue every task is routed to.
	QueueDefault = "default"
	// TaskStockReconcile replays the ledger against materials.stock_qty.
	TaskStockReconcile = "stock:reconcile"
	// TaskAllocationsReconcile replays the ledger against allocation counters.
	TaskAllocationsReconcile = "allocations:reconcile"
)

// ReconcilePayload carries the run options.
type ReconcilePayload struct {
	Repair       bool      `json:"repair"`
	ScheduledFor time.Time `json:"scheduled_for,omitempty"`
}

func newReconcileTask(taskType string, repair bool, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{Repair: repair, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// NewStockReconcileTask builds a stock reconciliation task.
func NewStockReconcileTask(repair bool, at time.Time) (*asynq.Task, error) {
	return newReconcileTask(TaskStockReconcile, repair, at)
}

// NewAllocationsReconcileTask builds an allocation reconciliation task.
func NewAllocationsReconcileTask(repair bool, at time.Time) (*asynq.Task, error) {
	return newReconcileTask(TaskAllocationsReconcile, repair, at)
}

// StockReconciler is satisfied by *stock.Projection.
type StockReconciler interface {
	ReconcileAll(ctx context.Context, repair bool) (*stock.Summary, error)
}

// AllocationReconciler is satisfied by *allocation.Service.
type AllocationReconciler interface {
	ReconcileAll(ctx context.Context, repair bool) (*allocation.Summary, error)
}

// ReconcileJob handles both reconciliation task types.
type ReconcileJob struct {
	stock       StockReconciler
	allocations AllocationReconciler
	metrics     *metrics.Metrics
}

// NewReconcileJob wires the reconcilers. m may be nil.
func NewReconcileJob(s StockReconciler, a AllocationReconciler, m *metrics.Metrics) *ReconcileJob {
	return &ReconcileJob{stock: s, allocations: a, metrics: m}
}

func decodePayload(t *asynq.Task) (ReconcilePayload, error) {
	var payload ReconcilePayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}

// HandleStock processes TaskStockReconcile.
func (j *ReconcileJob) HandleStock(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	tracker := j.metrics.Track(TaskStockReconcile)
	sum, err := j.stock.ReconcileAll(ctx, payload.Repair)
	if err != nil {
		return tracker.End(fmt.Errorf("reconcile stock: %w", err))
	}
	logger.Info(ctx, "stock reconciled",
		"checked", sum.Checked, "drifted", sum.Drifted, "repaired", sum.Repaired, "failed", sum.Failed)
	return tracker.End(nil)
}

// HandleAllocations processes TaskAllocationsReconcile.
func (j *ReconcileJob) HandleAllocations(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	tracker := j.metrics.Track(TaskAllocationsReconcile)
	sum, err := j.allocations.ReconcileAll(ctx, payload.Repair)
	if err != nil {
		return tracker.End(fmt.Errorf("reconcile allocations: %w", err))
	}
	logger.Info(ctx, "allocations reconciled",
		"checked", sum.Checked, "drifted", sum.Drifted, "repaired", sum.Repaired, "failed", sum.Failed)
	return tracker.End(nil)
}

// Handlers returns the task handlers for WorkerConfig.
func (j *ReconcileJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskStockReconcile, Handler: j.HandleStock},
		{Type: TaskAllocationsReconcile, Handler: j.HandleAllocations},
	}
}

// ReconcileCron registers both reconciliations on one cron spec.
func ReconcileCron(spec string, repair bool) ([]CronRegistration, error) {
	stockTask, err := NewStockReconcileTask(repair, time.Time{})
	if err != nil {
		return nil, err
	}
	allocTask, err := NewAllocationsReconcileTask(repair, time.Time{})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(3), asynq.Unique(time.Minute)}
	return []CronRegistration{
		{Spec: spec, Task: stockTask, Options: opts},
		{Spec: spec, Task: allocTask, Options: opts},
	}, nil
}
