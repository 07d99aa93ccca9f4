package model

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// VettingStatus tracks whether a ledger vendor has been through a vetting run.
type VettingStatus string

const (
	VettingStatusNotVetted VettingStatus = "not_vetted"
	VettingStatusVetted    VettingStatus = "vetted"
)

// VendorDetail is the verification result for a single discovery candidate.
type VendorDetail struct {
	Name            string `json:"name"`
	WebsiteURL      string `json:"website_url"`
	PrimaryOffering string `json:"primary_offering"`
	ServiceArea     string `json:"service_area"`
	MatchRationale  string `json:"match_rationale"`

	// VendorID is the ledger key once the detail has been persisted.
	VendorID string `json:"vendor_id,omitempty"`
}

// VendorRecord is the canonical persistent entity for a vendor, keyed by
// normalized name.
type VendorRecord struct {
	Key             string        `json:"key"`
	Name            string        `json:"name"`
	WebsiteURL      string        `json:"website_url,omitempty"`
	PrimaryOffering string        `json:"primary_offering,omitempty"`
	ServiceArea     string        `json:"service_area,omitempty"`
	VettingStatus   VettingStatus `json:"vetting_status"`
	LastReportID    string        `json:"last_report_id,omitempty"`
	DiscoveredIn    []string      `json:"discovered_in,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// VendorShortlist is the artifact returned by one discovery run.
type VendorShortlist struct {
	Material string         `json:"material_requested"`
	Location string         `json:"target_location"`
	Vendors  []VendorDetail `json:"vendors"`
	Summary  string         `json:"discovery_summary"`
}

var keyFolder = cases.Fold()

// NormalizeName derives the canonical ledger key for a display name:
// case-folded, trimmed, commas and periods stripped, slashes and internal
// whitespace replaced with hyphens. Stable for a given input; every dedup
// guarantee in the ledger rests on that.
func NormalizeName(name string) string {
	folded := keyFolder.String(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range folded {
		switch {
		case r == ',' || r == '.':
			// dropped outright
		case r == '/' || unicode.IsSpace(r):
			pendingHyphen = b.Len() > 0
		default:
			if pendingHyphen {
				b.WriteRune('-')
				pendingHyphen = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
