// Package bulk applies one account action across many ids, one at a time.
package bulk

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewbaird/accountdesk/internal/logger"
	"github.com/matthewbaird/accountdesk/internal/metrics"
)

// PreviewLimit caps how many failed ids a result preview lists.
const PreviewLimit = 5

// Action mutates one account.
type Action func(ctx context.Context, id string) error

// Invalidator drops a cached account after it changed.
type Invalidator interface {
	InvalidateOne(id string)
}

// Result records per-id outcomes of one run.
type Result struct {
	Outcomes  map[string]bool   `json:"outcomes"`
	Errors    map[string]string `json:"errors,omitempty"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	FailedIDs []string          `json:"failed_ids,omitempty"`
}

// Preview returns at most limit failed ids and how many were left out.
func (r Result) Preview(limit int) ([]string, int) {
	if len(r.FailedIDs) <= limit {
		return r.FailedIDs, 0
	}
	return r.FailedIDs[:limit], len(r.FailedIDs) - limit
}

// Runner applies actions sequentially. A failing or panicking item never
// stops the run.
type Runner struct {
	cache Invalidator
	log   *logger.Logger
	items *prometheus.CounterVec
}

// NewRunner creates a runner that invalidates cache on every success.
func NewRunner(cache Invalidator, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{cache: cache, log: log.With("component", "bulk")}
}

// RegisterMetrics adds an items counter, labelled by outcome, to reg.
func (r *Runner) RegisterMetrics(reg prometheus.Registerer) error {
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "bulk",
		Name:      "items_total",
		Help:      "Bulk action items by outcome",
	}, []string{"outcome"})
	if err := reg.Register(items); err != nil {
		return err
	}
	r.items = items
	return nil
}

// ApplyToAll runs action for each id in order.
func (r *Runner) ApplyToAll(ctx context.Context, ids []string, action Action) Result {
	res := Result{Outcomes: make(map[string]bool, len(ids)), Errors: map[string]string{}}
	for _, id := range ids {
		if _, done := res.Outcomes[id]; done {
			continue
		}
		err := r.applyOne(ctx, id, action)
		if err != nil {
			res.Outcomes[id] = false
			res.Errors[id] = err.Error()
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, id)
			r.count("failed")
			r.log.Warn("bulk item failed", "id", id, "error", err)
			continue
		}
		res.Outcomes[id] = true
		res.Succeeded++
		r.count("succeeded")
		if r.cache != nil {
			r.cache.InvalidateOne(id)
		}
	}
	r.log.Info("bulk run finished", "total", len(res.Outcomes), "succeeded", res.Succeeded, "failed", res.Failed)
	return res
}

func (r *Runner) applyOne(ctx context.Context, id string, action Action) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return action(ctx, id)
}

func (r *Runner) count(outcome string) {
	if r.items != nil {
		r.items.WithLabelValues(outcome).Inc()
	}
}
