// Package vetting implements the vendor vetting pipeline: decompose a
// vendor into risk-domain research tasks, fan them out, and synthesize a
// single risk report.
package vetting

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scrimworks/vendorvet/internal/ledger"
	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
)

const (
	defaultConcurrency = 8
	defaultTaskTimeout = 3 * time.Minute
)

// Pipeline orchestrates one vetting run end to end.
type Pipeline struct {
	exec   task.Executor
	search task.Searcher
	docs   DocumentSearcher
	store  ledger.Ledger

	concurrency int
	taskTimeout time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithDocumentSearcher enables curated document enrichment of research tasks.
func WithDocumentSearcher(docs DocumentSearcher) PipelineOption {
	return func(p *Pipeline) { p.docs = docs }
}

// WithLedger enables report persistence and vendor status updates.
func WithLedger(store ledger.Ledger) PipelineOption {
	return func(p *Pipeline) { p.store = store }
}

// WithConcurrency bounds the research fan-out.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithTaskTimeout sets the per-task deadline for research work.
func WithTaskTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

// NewPipeline creates a vetting pipeline over the given capabilities.
func NewPipeline(exec task.Executor, search task.Searcher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		exec:        exec,
		search:      search,
		concurrency: defaultConcurrency,
		taskTimeout: defaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result bundles the synthesized report with the run's audit trail.
type Result struct {
	Report  *model.SynthesizedReport
	History []model.HistoryEntry
}

// Run executes a full vetting run for the named vendor.
func (p *Pipeline) Run(ctx context.Context, vendor string) (*Result, error) {
	plan, err := BuildPlan(vendor)
	if err != nil {
		return nil, err
	}

	history := []model.HistoryEntry{{
		Role:    "director",
		Content: fmt.Sprintf("Research plan for %s across %d risk domains.", vendor, len(plan)),
	}}
	zap.L().Info("vetting: plan built",
		zap.String("vendor", vendor),
		zap.Int("domains", len(plan)),
	)

	reports, failed := p.Research(ctx, vendor, plan)
	if len(failed) == len(plan) {
		return nil, eris.Errorf("vetting: research failed for all %d domains of %s", len(plan), vendor)
	}
	for _, domain := range model.Domains() {
		report, ok := reports[domain]
		if !ok {
			continue
		}
		if report.Unavailable {
			history = append(history, model.HistoryEntry{
				Role:    string(domain) + "_researcher",
				Content: "Research unavailable for this category.",
			})
			continue
		}
		history = append(history, model.HistoryEntry{
			Role:    string(domain) + "_researcher",
			Content: report.Findings,
		})
	}
	if len(failed) > 0 {
		zap.L().Warn("vetting: proceeding with partial coverage",
			zap.String("vendor", vendor),
			zap.Int("failed_domains", len(failed)),
		)
	}

	report, err := p.Synthesize(ctx, vendor, reports, failed)
	if err != nil {
		return nil, eris.Wrap(err, "vetting: synthesize")
	}
	history = append(history, model.HistoryEntry{
		Role:    "synthesis",
		Content: report.Findings,
	})

	if err := p.persist(ctx, vendor, report); err != nil {
		return nil, err
	}

	return &Result{Report: report, History: history}, nil
}

// persist saves the vetting report and, when the vendor is already in the
// ledger, flips its vetting status.
func (p *Pipeline) persist(ctx context.Context, vendor string, report *model.SynthesizedReport) error {
	if p.store == nil {
		return nil
	}

	key := model.NormalizeName(vendor)
	rec := &model.VettingReport{
		VendorKey:      key,
		Subject:        vendor,
		Content:        report.Findings,
		RiskScore:      report.RiskScore,
		CourseOfAction: report.CourseOfAction,
		Citations:      report.Citations,
	}
	id, err := p.store.SaveVettingReport(ctx, rec)
	if err != nil {
		return &task.PersistenceError{Op: "save vetting report", Err: err}
	}
	report.ReportID = id

	known, err := p.store.GetVendor(ctx, key)
	if err != nil {
		return &task.PersistenceError{Op: "look up vendor", Err: err}
	}
	if known == nil {
		return nil
	}
	if err := p.store.MarkVetted(ctx, key, id); err != nil {
		return &task.PersistenceError{Op: "mark vendor vetted", Err: err}
	}
	return nil
}
