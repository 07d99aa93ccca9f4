package vetting

import (
	"strings"

	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
)

// BuildPlan decomposes a vetting request into one research sub-query per
// risk domain. The plan always covers exactly the fixed domain set and the
// vendor name appears verbatim in every query.
func BuildPlan(vendor string) (model.ResearchPlan, error) {
	vendor = strings.TrimSpace(vendor)
	if vendor == "" {
		return nil, &task.AmbiguousRequestError{Missing: []string{"vendor"}}
	}

	plan := make(model.ResearchPlan, len(model.Domains()))
	for _, domain := range model.Domains() {
		plan[domain] = researchQuery(vendor, domain)
	}
	return plan, nil
}
