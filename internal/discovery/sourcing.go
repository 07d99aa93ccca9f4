package discovery

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scrimworks/vendorvet/internal/task"
)

const (
	// roundTarget is the unique-candidate count that makes a second
	// sourcing round unnecessary.
	roundTarget = 8

	// maxPerRound caps how many candidate names one round may contribute.
	maxPerRound = 15
)

// roundQueries builds the search queries for a sourcing round. The first
// round looks for suppliers physically near the location; the second widens
// to companies that deliver or ship there.
func roundQueries(material, location string, round int) []string {
	if round == 1 {
		return []string{
			fmt.Sprintf("%s suppliers in %s, list at least 10 potential options", material, location),
			fmt.Sprintf("companies near %s that manufacture or stock %s", location, material),
		}
	}
	return []string{
		fmt.Sprintf("%s companies that deliver to %s", material, location),
		fmt.Sprintf("international %s suppliers shipping to %s", material, location),
		fmt.Sprintf("%s distributors serving the %s region", material, location),
	}
}

// sourceCandidates runs sourcing rounds until the unique-candidate target is
// met or both rounds are spent. Returned names are unique (case-insensitive)
// in first-seen order.
func (p *Pipeline) sourceCandidates(ctx context.Context, material, location string) ([]string, error) {
	var candidates []string
	seen := make(map[string]bool)

	for round := 1; round <= 2; round++ {
		if round == 2 && len(candidates) >= roundTarget {
			break
		}

		names, err := p.runRound(ctx, material, location, round)
		if err != nil {
			// A round with zero usable search results is only fatal when no
			// earlier round produced candidates.
			if len(candidates) > 0 {
				zap.L().Warn("discovery: sourcing round failed, keeping earlier candidates",
					zap.Int("round", round),
					zap.Error(err),
				)
				break
			}
			return nil, err
		}

		added := 0
		for _, name := range names {
			if added >= maxPerRound {
				break
			}
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, strings.TrimSpace(name))
			added++
		}
		zap.L().Info("discovery: sourcing round finished",
			zap.Int("round", round),
			zap.Int("new_candidates", added),
			zap.Int("total_candidates", len(candidates)),
		)
	}

	return candidates, nil
}

// candidateNames is the executor output shape for name extraction.
type candidateNames struct {
	CompanyNames []string `json:"company_names"`
}

// runRound fans out the round's queries, concatenates the usable results,
// and extracts candidate company names from them.
func (p *Pipeline) runRound(ctx context.Context, material, location string, round int) ([]string, error) {
	queries := roundQueries(material, location, round)
	specs := make([]task.Spec, len(queries))
	for i, q := range queries {
		specs[i] = task.Spec{
			Key:         fmt.Sprintf("round%d-query%d", round, i+1),
			Instruction: q,
			Tier:        task.TierLite,
			Timeout:     p.taskTimeout,
		}
	}

	results := task.Run(ctx, specs, len(specs), func(ctx context.Context, spec task.Spec) (string, error) {
		return p.search.Search(ctx, spec.Instruction, task.TierLite)
	})

	var combined strings.Builder
	usable := 0
	for _, spec := range specs {
		outcome := results[spec.Key]
		if outcome.Err != nil || outcome.Value == "" {
			continue
		}
		combined.WriteString(outcome.Value)
		combined.WriteString("\n\n")
		usable++
	}
	if usable == 0 {
		return nil, fmt.Errorf("discovery: no usable search results in round %d", round)
	}

	instruction := fmt.Sprintf(`From the following search result text, extract a list of company
names that seem to be suppliers of %q. Return a JSON object with a single key
"company_names" holding a list of strings.

Search result text:
---
%s
---`, material, combined.String())

	var out candidateNames
	if err := p.exec.Execute(ctx, instruction, task.TierLite, &out); err != nil {
		return nil, err
	}
	return out.CompanyNames, nil
}
