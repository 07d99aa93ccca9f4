package vetting

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
	"github.com/scrimworks/vendorvet/pkg/babel"
)

// DocumentSearcher is the optional curated-document capability consumed by
// research tasks. Satisfied by *babel.Client.
type DocumentSearcher interface {
	Search(ctx context.Context, req babel.SearchRequest) (*babel.SearchResponse, error)
}

const maxDocResults = 5

// Research fans the plan out across domain researchers and returns one
// report per domain. A failed task yields an unavailable marker for its
// domain; sibling tasks are never interrupted.
func (p *Pipeline) Research(ctx context.Context, vendor string, plan model.ResearchPlan) (map[model.Domain]model.DomainReport, []model.Domain) {
	specs := make([]task.Spec, 0, len(plan))
	for _, domain := range model.Domains() {
		query, ok := plan[domain]
		if !ok {
			continue
		}
		specs = append(specs, task.Spec{
			Key:         string(domain),
			Instruction: query,
			Tier:        task.TierStandard,
			Timeout:     p.taskTimeout,
		})
	}

	results := task.Run(ctx, specs, p.concurrency, func(ctx context.Context, spec task.Spec) (model.DomainReport, error) {
		return p.researchDomain(ctx, vendor, model.Domain(spec.Key), spec.Instruction)
	})

	reports := make(map[model.Domain]model.DomainReport, len(results))
	for _, domain := range model.Domains() {
		outcome, ok := results[string(domain)]
		if !ok {
			continue
		}
		if outcome.Err != nil {
			reports[domain] = model.DomainReport{Unavailable: true}
			continue
		}
		reports[domain] = outcome.Value
	}

	failed := make([]model.Domain, 0, len(results))
	for _, key := range task.FailedKeys(specs, results) {
		failed = append(failed, model.Domain(key))
	}
	if len(failed) == 0 {
		failed = nil
	}
	return reports, failed
}

// researchDomain runs one domain's research: web search, optional curated
// document lookup, then the fact-sheet task.
func (p *Pipeline) researchDomain(ctx context.Context, vendor string, domain model.Domain, query string) (model.DomainReport, error) {
	searchMaterial, err := p.search.Search(ctx, searchQuery(vendor, domain), task.TierDeep)
	if err != nil {
		return model.DomainReport{}, err
	}

	docMaterial := p.searchDocuments(ctx, vendor, domain)

	var report model.DomainReport
	instruction := researchInstruction(vendor, domain, query, searchMaterial, docMaterial)
	if err := p.exec.Execute(ctx, instruction, task.TierStandard, &report); err != nil {
		return model.DomainReport{}, err
	}
	return report, nil
}

// searchDocuments queries the curated document store for soft reporting on
// the vendor. Failures degrade the task to web search only.
func (p *Pipeline) searchDocuments(ctx context.Context, vendor string, domain model.Domain) string {
	if p.docs == nil {
		return ""
	}

	resp, err := p.docs.Search(ctx, babel.SearchRequest{
		AllTerms:    []string{vendor},
		AnyTerms:    domainDocTerms(domain),
		RecordCount: maxDocResults,
	})
	if err != nil {
		zap.L().Warn("vetting: document search unavailable",
			zap.String("vendor", vendor),
			zap.String("domain", string(domain)),
			zap.Error(err),
		)
		return ""
	}
	if len(resp.Documents) == 0 {
		return ""
	}

	var b strings.Builder
	for _, doc := range resp.Documents {
		fmt.Fprintf(&b, "[Babel %s] %s: %s\n", doc.ID, doc.Title, doc.Snippet)
	}
	return b.String()
}

// domainDocTerms picks document search terms per risk domain.
func domainDocTerms(domain model.Domain) []string {
	switch domain {
	case model.DomainFinance:
		return []string{"bankruptcy", "debt", "insolvency"}
	case model.DomainPolitical:
		return []string{"sanctions", "corruption", "geopolitics"}
	case model.DomainFOCI:
		return []string{"foreign ownership", "acquisition", "state-owned"}
	case model.DomainCompliance:
		return []string{"violation", "fine", "regulatory"}
	case model.DomainCybersecurity:
		return []string{"breach", "cyberattack", "ransomware"}
	case model.DomainManufacturing:
		return []string{"production", "shortage", "capacity"}
	case model.DomainLogistics:
		return []string{"shipping", "transportation", "port"}
	case model.DomainQuality:
		return []string{"recall", "defect", "counterfeit"}
	default:
		return nil
	}
}
