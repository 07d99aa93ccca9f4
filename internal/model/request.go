package model

import "time"

// RequestStatus represents the lifecycle state of a discovery request.
type RequestStatus string

const (
	RequestStatusInitiated RequestStatus = "initiated"
	RequestStatusSourcing  RequestStatus = "sourcing"
	RequestStatusVerifying RequestStatus = "verifying"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
)

// DiscoveryRequest is the persistent lifecycle record for one discovery run.
// It is created before any external call so that a run is auditable even when
// it fails early.
type DiscoveryRequest struct {
	ID       string        `json:"id"`
	Prompt   string        `json:"initial_prompt"`
	Material string        `json:"material_requested"`
	Location string        `json:"target_location"`
	Status   RequestStatus `json:"status"`
	Summary  string        `json:"discovery_summary,omitempty"`

	// VendorIDs are the ledger keys of vendors surfaced by this run.
	VendorIDs []string `json:"vendor_ids,omitempty"`

	CompaniesConsidered int `json:"companies_considered"`
	CompaniesDetailed   int `json:"companies_detailed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VettingReport is the persisted record of one completed vetting run.
type VettingReport struct {
	ID             string    `json:"id"`
	VendorKey      string    `json:"vendor_key"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
	RiskScore      float64   `json:"risk_score"`
	CourseOfAction string    `json:"course_of_action"`
	Citations      []string  `json:"citations"`
	CreatedAt      time.Time `json:"created_at"`
}
