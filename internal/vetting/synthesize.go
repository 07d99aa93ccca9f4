package vetting

import (
	"context"

	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
)

// synthesisResult is the executor output shape for the synthesis stage.
type synthesisResult struct {
	Findings       string   `json:"findings"`
	RiskScore      float64  `json:"risk_score"`
	CourseOfAction string   `json:"course_of_action"`
	Citations      []string `json:"citations"`
}

// Synthesize merges the domain fact sheets into a single report. It runs
// only after every research task has settled; callers pass the full report
// map including unavailable markers.
func (p *Pipeline) Synthesize(ctx context.Context, vendor string, reports map[model.Domain]model.DomainReport, failed []model.Domain) (*model.SynthesizedReport, error) {
	var result synthesisResult
	if err := p.exec.Execute(ctx, synthesisInstruction(vendor, reports), task.TierDeep, &result); err != nil {
		return nil, err
	}

	citations := result.Citations
	for _, domain := range model.Domains() {
		for _, src := range reports[domain].Sources {
			if src != "" && !contains(citations, src) {
				citations = append(citations, src)
			}
		}
	}

	return &model.SynthesizedReport{
		Subject:        vendor,
		Findings:       result.Findings,
		RiskScore:      result.RiskScore,
		CourseOfAction: result.CourseOfAction,
		Citations:      citations,
		FailedDomains:  failed,
	}, nil
}

func contains(ss []string, s string) bool {
	for _, have := range ss {
		if have == s {
			return true
		}
	}
	return false
}
