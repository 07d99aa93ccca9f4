package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrimworks/vendorvet/internal/ledger"
	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
)

// fakeExecutor routes Execute calls to a test-provided function.
type fakeExecutor struct {
	fn func(ctx context.Context, instruction string, tier task.ModelTier, out any) error
}

func (f *fakeExecutor) Execute(ctx context.Context, instruction string, tier task.ModelTier, out any) error {
	return f.fn(ctx, instruction, tier, out)
}

// fakeSearcher records queries and answers them with canned text.
type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	fn      func(query string) (string, error)
}

func (f *fakeSearcher) Search(ctx context.Context, query string, tier task.ModelTier) (string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.fn == nil {
		return "results for: " + query, nil
	}
	return f.fn(query)
}

func (f *fakeSearcher) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func decodeInto(v, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// scriptedExecutor answers the three executor call sites: target extraction,
// candidate-name extraction, and per-candidate verification.
func scriptedExecutor(t *testing.T, material, location string, round1, round2 []string, verify func(name string) model.VendorDetail) *fakeExecutor {
	t.Helper()
	return &fakeExecutor{fn: func(ctx context.Context, instruction string, tier task.ModelTier, out any) error {
		switch {
		case strings.Contains(instruction, "extract the 'material'"):
			return decodeInto(target{Material: material, Location: location}, out)

		case strings.Contains(instruction, `"company_names"`):
			names := round1
			if strings.Contains(instruction, "deliver to") {
				names = round2
			}
			return decodeInto(candidateNames{CompanyNames: names}, out)

		case strings.Contains(instruction, "investigating one single company"):
			name := instructionCompany(instruction)
			return decodeInto(verify(name), out)

		default:
			t.Fatalf("unexpected instruction: %s", instruction)
			return nil
		}
	}}
}

// instructionCompany pulls the company name back out of a verification
// instruction.
func instructionCompany(instruction string) string {
	const marker = "Company: \""
	start := strings.Index(instruction, marker)
	if start < 0 {
		return ""
	}
	rest := instruction[start+len(marker):]
	end := strings.Index(rest, "\"")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func namedVendors(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s Vendor %c", prefix, 'A'+i)
	}
	return out
}

func matchingDetail(name string) model.VendorDetail {
	return model.VendorDetail{
		Name:            name,
		WebsiteURL:      "https://" + model.NormalizeName(name) + ".example",
		PrimaryOffering: "steel",
		ServiceArea:     "Pittsburgh metro",
		MatchRationale:  "confirmed supplier",
	}
}

func newTestStore(t *testing.T) *ledger.SQLiteLedger {
	t.Helper()
	store, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestPipeline_Run_SingleRound(t *testing.T) {
	round1 := namedVendors(9, "Steel")
	exec := scriptedExecutor(t, "steel", "Pittsburgh", round1, nil, matchingDetail)
	search := &fakeSearcher{}
	store := newTestStore(t)

	p := NewPipeline(exec, search, store)
	shortlist, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.NoError(t, err)

	assert.Equal(t, "steel", shortlist.Material)
	assert.Equal(t, "Pittsburgh", shortlist.Location)
	assert.Len(t, shortlist.Vendors, 9)
	assert.Contains(t, shortlist.Summary, "Found 9 potential vendors for steel in Pittsburgh")
	assert.Contains(t, shortlist.Summary, "initial list of 9 prospects")

	// Nine candidates hit the target, so only round 1's two sourcing queries
	// ran, plus one verification search per candidate.
	assert.Equal(t, 2+9, search.queryCount())

	// Every shortlisted vendor landed in the ledger with the request linked.
	requests, err := store.ListRequests(context.Background(), ledger.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, model.RequestStatusCompleted, req.Status)
	assert.Equal(t, 9, req.CompaniesConsidered)
	assert.Equal(t, 9, req.CompaniesDetailed)
	assert.Len(t, req.VendorIDs, 9)

	rec, err := store.GetVendor(context.Background(), model.NormalizeName("Steel Vendor A"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{req.ID}, rec.DiscoveredIn)
}

func TestPipeline_Run_SecondRoundWhenBelowTarget(t *testing.T) {
	round1 := namedVendors(5, "Local")
	round2 := namedVendors(4, "Shipping")
	exec := scriptedExecutor(t, "steel", "Pittsburgh", round1, round2, matchingDetail)
	search := &fakeSearcher{}

	p := NewPipeline(exec, search, newTestStore(t))
	shortlist, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.NoError(t, err)

	// 2 round-1 queries + 3 round-2 queries + 9 verification searches.
	assert.Equal(t, 2+3+9, search.queryCount())
	assert.Len(t, shortlist.Vendors, 9)
	// Round-1 candidates keep first-seen priority in the shortlist.
	assert.Equal(t, "Local Vendor A", shortlist.Vendors[0].Name)
}

func TestPipeline_Run_NoSecondRoundAtExactTarget(t *testing.T) {
	round1 := namedVendors(8, "Steel")
	exec := scriptedExecutor(t, "steel", "Pittsburgh", round1, namedVendors(3, "Extra"), matchingDetail)
	search := &fakeSearcher{}

	p := NewPipeline(exec, search, newTestStore(t))
	shortlist, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.NoError(t, err)

	// Exactly the target: the delivery-focus round must not run.
	assert.Equal(t, 2+8, search.queryCount())
	assert.Len(t, shortlist.Vendors, 8)
}

func TestPipeline_Run_CapsCandidatesPerRound(t *testing.T) {
	round1 := namedVendors(20, "Steel")
	exec := scriptedExecutor(t, "steel", "Pittsburgh", round1, nil, matchingDetail)
	search := &fakeSearcher{}

	p := NewPipeline(exec, search, newTestStore(t))
	shortlist, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.NoError(t, err)
	assert.Len(t, shortlist.Vendors, 15)
	assert.Contains(t, shortlist.Summary, "initial list of 15 prospects")
}

func TestPipeline_Run_AmbiguousRequest(t *testing.T) {
	exec := scriptedExecutor(t, "", "Pittsburgh", nil, nil, matchingDetail)
	store := newTestStore(t)

	p := NewPipeline(exec, &fakeSearcher{}, store)
	shortlist, err := p.Run(context.Background(), "find me some suppliers")
	require.NoError(t, err)

	assert.Empty(t, shortlist.Vendors)
	assert.Equal(t, "Unknown", shortlist.Material)
	assert.Equal(t, "Pittsburgh", shortlist.Location)
	assert.Equal(t, summaryAmbiguous, shortlist.Summary)

	requests, err := store.ListRequests(context.Background(), ledger.RequestFilter{Status: model.RequestStatusFailed})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, summaryAmbiguous, requests[0].Summary)
}

func TestPipeline_Run_NoCandidatesFound(t *testing.T) {
	exec := scriptedExecutor(t, "steel", "Pittsburgh", nil, nil, matchingDetail)
	store := newTestStore(t)

	p := NewPipeline(exec, &fakeSearcher{}, store)
	shortlist, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.NoError(t, err)

	assert.Empty(t, shortlist.Vendors)
	assert.Equal(t, summaryNoVendors, shortlist.Summary)

	requests, err := store.ListRequests(context.Background(), ledger.RequestFilter{Status: model.RequestStatusFailed})
	require.NoError(t, err)
	assert.Len(t, requests, 1)
}

func TestPipeline_Run_SearchOutageFailsRequest(t *testing.T) {
	exec := scriptedExecutor(t, "steel", "Pittsburgh", namedVendors(5, "Steel"), nil, matchingDetail)
	search := &fakeSearcher{fn: func(query string) (string, error) {
		return "", assert.AnError
	}}
	store := newTestStore(t)

	p := NewPipeline(exec, search, store)
	_, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.Error(t, err)

	requests, err := store.ListRequests(context.Background(), ledger.RequestFilter{Status: model.RequestStatusFailed})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Summary, "Sourcing failed")
}

func TestPipeline_Run_VerificationFailureIsolated(t *testing.T) {
	round1 := namedVendors(9, "Steel")
	exec := scriptedExecutor(t, "steel", "Pittsburgh", round1, nil, matchingDetail)
	search := &fakeSearcher{fn: func(query string) (string, error) {
		if strings.Contains(query, "Steel Vendor C company profile") {
			return "", assert.AnError
		}
		return "results", nil
	}}
	store := newTestStore(t)

	p := NewPipeline(exec, search, store)
	shortlist, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.NoError(t, err)

	assert.Len(t, shortlist.Vendors, 8)
	for _, v := range shortlist.Vendors {
		assert.NotEqual(t, "Steel Vendor C", v.Name)
	}

	requests, err := store.ListRequests(context.Background(), ledger.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, 9, requests[0].CompaniesConsidered)
	assert.Equal(t, 8, requests[0].CompaniesDetailed)
}

func TestPipeline_Run_DropsUnconfirmedAndDuplicateVendors(t *testing.T) {
	round1 := []string{"Steel Vendor A", "Steel Vendor B", "Steel Vendor C"}
	exec := scriptedExecutor(t, "steel", "Pittsburgh", round1, nil, func(name string) model.VendorDetail {
		switch name {
		case "Steel Vendor B":
			// Verified but no website confirmed: dropped.
			return model.VendorDetail{Name: name, MatchRationale: "could not confirm website"}
		case "Steel Vendor C":
			// Resolves to the same company as A: deduplicated.
			d := matchingDetail("STEEL VENDOR A")
			return d
		default:
			return matchingDetail(name)
		}
	})
	store := newTestStore(t)

	p := NewPipeline(exec, &fakeSearcher{}, store)
	shortlist, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.NoError(t, err)

	require.Len(t, shortlist.Vendors, 1)
	assert.Equal(t, "Steel Vendor A", shortlist.Vendors[0].Name)

	vendors, err := store.ListVendors(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}

func TestPipeline_Run_DedupesPunctuationVariants(t *testing.T) {
	// Two search rounds can surface the same company under punctuation
	// variants that differ even case-insensitively.
	round1 := []string{"Steel Vendor A", "Steel Vendor B"}
	exec := scriptedExecutor(t, "steel", "Pittsburgh", round1, nil, func(name string) model.VendorDetail {
		if name == "Steel Vendor B" {
			return matchingDetail("Acme Corp.")
		}
		return matchingDetail("Acme Corp")
	})
	store := newTestStore(t)

	p := NewPipeline(exec, &fakeSearcher{}, store)
	shortlist, err := p.Run(context.Background(), "find steel suppliers near Pittsburgh")
	require.NoError(t, err)

	require.Len(t, shortlist.Vendors, 1)
	assert.Equal(t, "Acme Corp", shortlist.Vendors[0].Name)
	assert.Equal(t, "acme-corp", shortlist.Vendors[0].VendorID)

	// The request records the ledger key once, and the ledger holds one row.
	requests, err := store.ListRequests(context.Background(), ledger.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, []string{"acme-corp"}, requests[0].VendorIDs)

	vendors, err := store.ListVendors(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}
