package discovery

import (
	"context"
	"fmt"

	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
)

// verifyCandidates fans out one verification task per candidate name.
// Failures are isolated; the returned map only holds settled outcomes.
func (p *Pipeline) verifyCandidates(ctx context.Context, names []string, material, location string) map[string]task.Outcome[model.VendorDetail] {
	specs := make([]task.Spec, len(names))
	for i, name := range names {
		specs[i] = task.Spec{
			Key:         name,
			Instruction: name,
			Tier:        task.TierLite,
			Timeout:     p.taskTimeout,
		}
	}

	return task.Run(ctx, specs, p.verifyConcurrency, func(ctx context.Context, spec task.Spec) (model.VendorDetail, error) {
		return p.verifyOne(ctx, spec.Instruction, material, location)
	})
}

// verifyOne researches a single company and determines whether it is a
// suitable supplier for the material and location.
func (p *Pipeline) verifyOne(ctx context.Context, name, material, location string) (model.VendorDetail, error) {
	searchResults, err := p.search.Search(ctx,
		fmt.Sprintf("%s company profile: does it supply %s, does it serve %s, official website", name, material, location),
		task.TierLite,
	)
	if err != nil {
		return model.VendorDetail{}, err
	}

	instruction := fmt.Sprintf(`You are investigating one single company to determine if it is a
suitable supplier of %q for %q.

Company: %q

Research material:
---
%s
---

Verify whether the company actually supplies the material and whether it can
deliver to or operates in the target location. Find the company's main
website URL. Return a JSON object with exactly these keys:
- "name": the company's proper name
- "website_url": the main website URL, or an empty string if the company is
  not a suitable supplier or no website could be confirmed
- "primary_offering": what the company primarily supplies
- "service_area": where the company operates or delivers
- "match_rationale": a brief explanation of why this vendor is or is not a
  good match`, material, location, name, searchResults)

	var detail model.VendorDetail
	if err := p.exec.Execute(ctx, instruction, task.TierLite, &detail); err != nil {
		return model.VendorDetail{}, err
	}
	if detail.Name == "" {
		detail.Name = name
	}
	return detail, nil
}
