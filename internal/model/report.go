// Package model defines the domain types shared by the vetting and
// discovery pipelines.
package model

// Domain is one fixed risk category in the vetting taxonomy.
type Domain string

const (
	DomainFinance       Domain = "finance"
	DomainPolitical     Domain = "political"
	DomainFOCI          Domain = "foci"
	DomainCompliance    Domain = "compliance"
	DomainCybersecurity Domain = "cybersecurity"
	DomainManufacturing Domain = "manufacturing"
	DomainLogistics     Domain = "logistics"
	DomainQuality       Domain = "quality"
)

// Domains returns the fixed risk-domain set in canonical order.
func Domains() []Domain {
	return []Domain{
		DomainFinance,
		DomainPolitical,
		DomainFOCI,
		DomainCompliance,
		DomainCybersecurity,
		DomainManufacturing,
		DomainLogistics,
		DomainQuality,
	}
}

// ResearchPlan maps each risk domain to the sub-query a researcher should
// pursue. Built once per vetting run and never mutated afterwards.
type ResearchPlan map[Domain]string

// DomainReport is the fact sheet produced by a single domain research task.
type DomainReport struct {
	SubjectMatter   string   `json:"subject_matter"`
	Findings        string   `json:"findings"`
	Vulnerabilities string   `json:"vulnerabilities"`
	Threats         string   `json:"threats"`
	Sources         []string `json:"sources"`

	// Unavailable marks a domain whose research task failed. The synthesis
	// stage includes the domain by name with an explicit unavailable note
	// instead of dropping it silently.
	Unavailable bool `json:"unavailable,omitempty"`
}

// SynthesizedReport is the unified output of one vetting run.
type SynthesizedReport struct {
	ReportID       string   `json:"report_id"`
	Subject        string   `json:"subject"`
	Findings       string   `json:"findings"`
	RiskScore      float64  `json:"risk_score"`
	CourseOfAction string   `json:"course_of_action"`
	Citations      []string `json:"citations"`

	// FailedDomains records which research tasks did not complete. Metadata
	// only; a partially sourced report is still a valid result.
	FailedDomains []Domain `json:"failed_domains,omitempty"`
}

// HistoryEntry is one row of the ordered conversation/audit trail kept by
// the vetting driver. Observational only, never used for control flow.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
