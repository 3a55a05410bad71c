package query

import (
	"context"
	"errors"
	"testing"

	"github.com/mwtools/wikiquery/internal/testutil"
	"github.com/mwtools/wikiquery/pkg/client"
)

// countPages reduces a batch to the number of pages it returned.
func countPages(ctx context.Context, pages *Pages) (int, error) {
	n := 0
	for pages.Next(ctx) {
		if q := pages.Page().Query; q != nil {
			n += len(q.Pages)
		}
	}
	return n, pages.Err()
}

func TestExecute_PositionalResults(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.SetResponse("Cat", testutil.NewQueryResponse(
		`{"pages": [{"pageid": 3456, "ns": 0, "title": "Cat"}]}`))
	mock.SetResponse("Bird|Dog", testutil.NewQueryResponse(
		`{"pages": [{"pageid": 1, "ns": 0, "title": "Dog"}, {"pageid": 2, "ns": 0, "title": "Bird"}]}`))

	driver := newTestDriver(t, mock)
	ex := NewExecutor(driver, 4)

	descriptors := []Descriptor{
		{Kind: KindTitle, Batch: []string{"Cat"}},
		{Kind: KindTitle, Batch: []string{"Dog", "Bird"}},
	}

	results, errs := Execute(context.Background(), ex, descriptors, countPages)
	if err := Combined(errs); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if results[0] != 1 {
		t.Errorf("results[0] = %d, want 1", results[0])
	}
	if results[1] != 2 {
		t.Errorf("results[1] = %d, want 2", results[1])
	}
}

func TestExecute_FailingBatchKeepsSiblings(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.SetResponse("Cat", testutil.NewQueryResponse(
		`{"pages": [{"pageid": 3456, "ns": 0, "title": "Cat"}]}`))
	mock.SetResponse("Dog", testutil.NewErrorResponse("badtoken", "boom"))
	mock.SetResponse("Bird", testutil.NewQueryResponse(
		`{"pages": [{"pageid": 2, "ns": 0, "title": "Bird"}]}`))

	driver := newTestDriver(t, mock)
	ex := NewExecutor(driver, 2)

	descriptors := []Descriptor{
		{Kind: KindTitle, Batch: []string{"Cat"}},
		{Kind: KindTitle, Batch: []string{"Dog"}},
		{Kind: KindTitle, Batch: []string{"Bird"}},
	}

	results, errs := Execute(context.Background(), ex, descriptors, countPages)

	if errs[0] != nil || errs[2] != nil {
		t.Errorf("sibling batches failed: %v, %v", errs[0], errs[2])
	}
	if errs[1] == nil {
		t.Fatal("Expected error for failed batch")
	}
	var remote *client.RemoteError
	if !errors.As(errs[1], &remote) || remote.Code != "badtoken" {
		t.Errorf("errs[1] = %v, want badtoken remote error", errs[1])
	}
	if results[0] != 1 || results[2] != 1 {
		t.Errorf("sibling results lost: %v", results)
	}

	combined := Combined(errs)
	if combined == nil {
		t.Fatal("Combined() = nil, want aggregated error")
	}
	if !errors.As(combined, &remote) {
		t.Errorf("Combined() should preserve wrapped errors, got %v", combined)
	}
}

func TestExecute_NoDescriptors(t *testing.T) {
	driver := newTestDriver(t, testutil.NewMockWiki())
	ex := NewExecutor(driver, 2)

	results, errs := Execute(context.Background(), ex, nil, countPages)
	if len(results) != 0 || len(errs) != 0 {
		t.Errorf("Expected empty results for empty descriptor list")
	}
	if Combined(errs) != nil {
		t.Errorf("Combined() on no errors should be nil")
	}
}

func TestCollectPages(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.SetSequence("Cat",
		testutil.NewContinueResponse(
			`{"pages": [{"pageid": 3456, "ns": 0, "title": "Cat"}]}`,
			`{"plcontinue": "x", "continue": "||"}`,
		),
		testutil.NewQueryResponse(`{"pages": [{"pageid": 3456, "ns": 0, "title": "Cat"}]}`),
	)

	driver := newTestDriver(t, mock)
	ex := NewExecutor(driver, 1)

	results, errs := Execute(context.Background(), ex,
		[]Descriptor{{Kind: KindTitle, Batch: []string{"Cat"}}}, CollectPages)
	if err := Combined(errs); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if len(results[0]) != 2 {
		t.Errorf("CollectPages returned %d pages, want 2", len(results[0]))
	}
}
