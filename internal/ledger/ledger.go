// Package ledger persists canonical vendor entities and discovery-request
// lifecycle records. Vendors are keyed by normalized name and merged with
// first-writer-wins semantics per field.
package ledger

import (
	"context"
	"sync"

	"github.com/scrimworks/vendorvet/internal/model"
)

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	Status model.RequestStatus
	Limit  int
	Offset int
}

// Ledger is the persistence interface consumed by both pipelines.
type Ledger interface {
	// GetOrCreateVendor inserts the candidate when its key is absent.
	// When present, it fills only fields that are empty on the stored record
	// and unions the DiscoveredIn request IDs, never overwriting a non-empty
	// stored field. Safe under concurrent calls with the same key.
	GetOrCreateVendor(ctx context.Context, candidate model.VendorRecord) (*model.VendorRecord, error)
	GetVendor(ctx context.Context, key string) (*model.VendorRecord, error)
	ListVendors(ctx context.Context, limit, offset int) ([]model.VendorRecord, error)
	// MarkVetted flips the vendor's vetting status and records the report
	// reference. A re-vet is the one path allowed to overwrite LastReportID.
	MarkVetted(ctx context.Context, key, reportID string) error

	CreateRequest(ctx context.Context, prompt string) (*model.DiscoveryRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error
	SetRequestTarget(ctx context.Context, id, material, location string) error
	// CompleteRequest writes the terminal fields in one update.
	CompleteRequest(ctx context.Context, id, summary string, vendorIDs []string, considered, detailed int) error
	FailRequest(ctx context.Context, id, summary string) error
	GetRequest(ctx context.Context, id string) (*model.DiscoveryRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]model.DiscoveryRequest, error)

	SaveVettingReport(ctx context.Context, report *model.VettingReport) (string, error)

	Migrate(ctx context.Context) error
	Close() error
}

// keyedMutex serializes operations on a single vendor key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// mergeVendor fills empty fields on stored from candidate and unions
// DiscoveredIn, returning whether anything changed.
func mergeVendor(stored *model.VendorRecord, candidate model.VendorRecord) bool {
	changed := false
	if stored.WebsiteURL == "" && candidate.WebsiteURL != "" {
		stored.WebsiteURL = candidate.WebsiteURL
		changed = true
	}
	if stored.PrimaryOffering == "" && candidate.PrimaryOffering != "" {
		stored.PrimaryOffering = candidate.PrimaryOffering
		changed = true
	}
	if stored.ServiceArea == "" && candidate.ServiceArea != "" {
		stored.ServiceArea = candidate.ServiceArea
		changed = true
	}
	for _, reqID := range candidate.DiscoveredIn {
		if reqID == "" {
			continue
		}
		seen := false
		for _, have := range stored.DiscoveredIn {
			if have == reqID {
				seen = true
				break
			}
		}
		if !seen {
			stored.DiscoveredIn = append(stored.DiscoveredIn, reqID)
			changed = true
		}
	}
	return changed
}
