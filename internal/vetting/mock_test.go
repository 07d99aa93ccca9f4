package vetting

import (
	"context"
	"encoding/json"

	"github.com/scrimworks/vendorvet/internal/task"
	"github.com/scrimworks/vendorvet/pkg/babel"
)

// fakeExecutor routes Execute calls to a test-provided function.
type fakeExecutor struct {
	fn func(ctx context.Context, instruction string, tier task.ModelTier, out any) error
}

func (f *fakeExecutor) Execute(ctx context.Context, instruction string, tier task.ModelTier, out any) error {
	return f.fn(ctx, instruction, tier, out)
}

// fakeSearcher routes Search calls to a test-provided function.
type fakeSearcher struct {
	fn func(ctx context.Context, query string, tier task.ModelTier) (string, error)
}

func (f *fakeSearcher) Search(ctx context.Context, query string, tier task.ModelTier) (string, error) {
	if f.fn == nil {
		return "search results", nil
	}
	return f.fn(ctx, query, tier)
}

// fakeDocs returns canned documents for every query.
type fakeDocs struct {
	docs []babel.Document
	err  error
}

func (f *fakeDocs) Search(ctx context.Context, req babel.SearchRequest) (*babel.SearchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &babel.SearchResponse{Documents: f.docs, TotalDocumentCount: len(f.docs)}, nil
}

// decodeInto marshals v through JSON into out, mirroring what the real
// executor does with model output.
func decodeInto(v, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
