// Package discovery implements the vendor discovery pipeline: parse a
// sourcing request, run staged searches for candidate companies, verify
// each candidate concurrently, and record the shortlist in the ledger.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrimworks/vendorvet/internal/ledger"
	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
)

const (
	defaultVerifyConcurrency = 10
	defaultTaskTimeout       = 2 * time.Minute
)

const (
	summaryAmbiguous = "Could not determine the material and/or location from your request. Please be more specific."
	summaryNoVendors = "No potential vendors were found in the initial search. You could try rephrasing your request."
)

// Pipeline orchestrates one discovery run end to end.
type Pipeline struct {
	exec   task.Executor
	search task.Searcher
	store  ledger.Ledger

	verifyConcurrency int
	taskTimeout       time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithVerifyConcurrency bounds the verification fan-out.
func WithVerifyConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.verifyConcurrency = n
		}
	}
}

// WithTaskTimeout sets the per-task deadline.
func WithTaskTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

// NewPipeline creates a discovery pipeline over the given capabilities.
func NewPipeline(exec task.Executor, search task.Searcher, store ledger.Ledger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		exec:              exec,
		search:            search,
		store:             store,
		verifyConcurrency: defaultVerifyConcurrency,
		taskTimeout:       defaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes a full discovery run for a free-text request. The lifecycle
// record is created before any external work so failed runs stay auditable.
func (p *Pipeline) Run(ctx context.Context, prompt string) (*model.VendorShortlist, error) {
	req, err := p.store.CreateRequest(ctx, prompt)
	if err != nil {
		return nil, &task.PersistenceError{Op: "create discovery request", Err: err}
	}
	zap.L().Info("discovery: request created", zap.String("request_id", req.ID))

	material, location, err := p.extractTarget(ctx, prompt)
	if err != nil {
		var ambiguous *task.AmbiguousRequestError
		if errors.As(err, &ambiguous) {
			p.failRequest(ctx, req.ID, summaryAmbiguous)
			return &model.VendorShortlist{
				Material: orUnknown(material),
				Location: orUnknown(location),
				Vendors:  []model.VendorDetail{},
				Summary:  summaryAmbiguous,
			}, nil
		}
		p.failRequest(ctx, req.ID, "Request parsing failed: "+err.Error())
		return nil, err
	}

	if err := p.store.SetRequestTarget(ctx, req.ID, material, location); err != nil {
		zap.L().Warn("discovery: failed to record request target", zap.Error(err))
	}
	p.setStatus(ctx, req.ID, model.RequestStatusSourcing)

	candidates, err := p.sourceCandidates(ctx, material, location)
	if err != nil {
		p.failRequest(ctx, req.ID, "Sourcing failed: "+err.Error())
		return nil, err
	}
	if len(candidates) == 0 {
		p.failRequest(ctx, req.ID, summaryNoVendors)
		return &model.VendorShortlist{
			Material: material,
			Location: location,
			Vendors:  []model.VendorDetail{},
			Summary:  summaryNoVendors,
		}, nil
	}

	p.setStatus(ctx, req.ID, model.RequestStatusVerifying)
	zap.L().Info("discovery: verifying candidates",
		zap.String("request_id", req.ID),
		zap.Int("candidates", len(candidates)),
	)
	outcomes := p.verifyCandidates(ctx, candidates, material, location)

	vendors, vendorIDs, detailed := p.collectVendors(ctx, req.ID, candidates, outcomes)

	summary := fmt.Sprintf("Found %d potential vendors for %s in %s after reviewing an initial list of %d prospects.",
		len(vendors), material, location, len(candidates))
	if err := p.store.CompleteRequest(ctx, req.ID, summary, vendorIDs, len(candidates), detailed); err != nil {
		zap.L().Warn("discovery: failed to finalize request", zap.String("request_id", req.ID), zap.Error(err))
	}

	return &model.VendorShortlist{
		Material: material,
		Location: location,
		Vendors:  vendors,
		Summary:  summary,
	}, nil
}

// collectVendors filters verification outcomes down to the shortlist:
// settled details with a confirmed website, deduplicated by normalized name
// in first-seen candidate order, each upserted into the ledger. No two
// shortlist entries share a ledger key.
func (p *Pipeline) collectVendors(ctx context.Context, requestID string, candidates []string, outcomes map[string]task.Outcome[model.VendorDetail]) ([]model.VendorDetail, []string, int) {
	vendors := make([]model.VendorDetail, 0, len(candidates))
	var vendorIDs []string
	seen := make(map[string]bool)
	detailed := 0

	for _, name := range candidates {
		outcome, ok := outcomes[name]
		if !ok || outcome.Err != nil {
			continue
		}
		detailed++

		detail := outcome.Value
		if detail.WebsiteURL == "" {
			continue
		}
		key := model.NormalizeName(detail.Name)
		if seen[key] {
			continue
		}
		seen[key] = true

		rec, err := p.store.GetOrCreateVendor(ctx, model.VendorRecord{
			Key:             key,
			Name:            detail.Name,
			WebsiteURL:      detail.WebsiteURL,
			PrimaryOffering: detail.PrimaryOffering,
			ServiceArea:     detail.ServiceArea,
			DiscoveredIn:    []string{requestID},
		})
		if err != nil {
			// The vendor stays in the shortlist without a ledger identity.
			perr := &task.PersistenceError{Op: "upsert vendor " + key, Err: err}
			zap.L().Warn("discovery: vendor upsert failed",
				zap.String("request_id", requestID),
				zap.Error(perr),
			)
		} else {
			detail.VendorID = rec.Key
			vendorIDs = append(vendorIDs, rec.Key)
		}
		vendors = append(vendors, detail)
	}

	return vendors, vendorIDs, detailed
}

func (p *Pipeline) setStatus(ctx context.Context, id string, status model.RequestStatus) {
	if err := p.store.UpdateRequestStatus(ctx, id, status); err != nil {
		zap.L().Warn("discovery: status update failed",
			zap.String("request_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) failRequest(ctx context.Context, id, summary string) {
	if err := p.store.FailRequest(ctx, id, summary); err != nil {
		zap.L().Warn("discovery: failed to mark request failed",
			zap.String("request_id", id),
			zap.Error(err),
		)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
