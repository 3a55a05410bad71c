package canonical

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwtools/wikiquery/internal/testutil"
	"github.com/mwtools/wikiquery/pkg/client"
	"github.com/mwtools/wikiquery/pkg/query"
)

func newTestResolver(t *testing.T, mock *testutil.MockWiki) *Resolver {
	t.Helper()
	c, err := client.New(client.Config{
		BaseURL:   mock.URL(),
		UserAgent: "wikiquery-test/1.0 (test@example.com)",
	})
	if err != nil {
		t.Fatalf("client.New() failed: %v", err)
	}
	cfg := DefaultResolverConfig()
	cfg.Adaptive.Backoff = time.Millisecond
	return NewResolver(c, NewStore(), cfg)
}

func TestResolve_NormalizationMerges(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	// Both raw spellings normalize to the same canonical page.
	mock.SetResponse("CAT|cat", testutil.NewQueryResponse(`{
		"normalized": [
			{"from": "cat", "to": "Cat"},
			{"from": "CAT", "to": "Cat"}
		],
		"pages": [{"pageid": 3456, "ns": 0, "title": "Cat"}]
	}`))

	r := newTestResolver(t, mock)
	ctx := context.Background()
	if err := r.Resolve(ctx, query.Titles("cat", "CAT")); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	store := r.Store()
	for _, raw := range []string{"cat", "CAT", "Cat"} {
		got, known := store.CanonicalTitle(raw)
		if !known || got != "Cat" {
			t.Errorf("CanonicalTitle(%s) = (%q, %v), want Cat", raw, got, known)
		}
	}
	if id, ok := store.PageIDOf("Cat"); !ok || id != 3456 {
		t.Errorf("PageIDOf(Cat) = (%d, %v), want 3456", id, ok)
	}

	// Alias map stays untouched by a plain resolve.
	if _, ok := store.Aliases("Cat"); ok {
		t.Error("resolve must not populate the alias map")
	}

	// Idempotence: the same request set again issues zero network requests.
	mock.Reset()
	if err := r.Resolve(ctx, query.Titles("cat", "CAT", "Cat")); err != nil {
		t.Fatalf("second Resolve() failed: %v", err)
	}
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("second Resolve() made %d requests, want 0", got)
	}
}

func TestResolve_RedirectAndFollowUpIDs(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	// The combined pass reports the redirect and the target page; the source
	// title's own id arrives only via the follow-up identifier fetch.
	mock.SetSequence("Puppy",
		testutil.NewQueryResponse(`{
			"redirects": [{"from": "Puppy", "to": "Dog"}],
			"pages": [{"pageid": 4269567, "ns": 0, "title": "Dog"}]
		}`),
		testutil.NewQueryResponse(`{
			"pages": [{"pageid": 99, "ns": 0, "title": "Puppy"}]
		}`),
	)

	r := newTestResolver(t, mock)
	ctx := context.Background()
	if err := r.Resolve(ctx, query.Titles("Puppy")); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	store := r.Store()
	if got, known := store.CanonicalTitle("Puppy"); !known || got != "Dog" {
		t.Errorf("CanonicalTitle(Puppy) = (%q, %v), want Dog", got, known)
	}
	if id, ok := store.PageIDOf("Puppy"); !ok || id != 99 {
		t.Errorf("PageIDOf(Puppy) = (%d, %v), want 99", id, ok)
	}
	// The numeric equivalent of the redirect is derived automatically.
	if got, known := store.CanonicalPageID(99); !known || got != 4269567 {
		t.Errorf("CanonicalPageID(99) = (%d, %v), want 4269567", got, known)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("Resolve() made %d requests, want 2 (combined pass + id follow-up)", got)
	}
}

func TestResolve_MissingEntity(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	mock.SetResponse("No Such Page", testutil.NewQueryResponse(`{
		"pages": [{"ns": 0, "title": "No Such Page", "missing": true}]
	}`))

	r := newTestResolver(t, mock)
	ctx := context.Background()
	if err := r.Resolve(ctx, query.Titles("No Such Page")); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	store := r.Store()
	if _, known := store.CanonicalTitle("No Such Page"); known {
		t.Error("missing entity should canonicalize to known-missing")
	}
	target, ok := store.Redirect("No Such Page")
	if !ok || target != nil {
		t.Errorf("Redirect(No Such Page) = (%v, %v), want recorded nil", target, ok)
	}
	if id, ok := store.PageIDOf("No Such Page"); !ok || id != -1 {
		t.Errorf("PageIDOf(No Such Page) = (%d, %v), want -1", id, ok)
	}

	// A later resolve for the known-missing title issues nothing.
	mock.Reset()
	if err := r.Resolve(ctx, query.Titles("No Such Page")); err != nil {
		t.Fatalf("second Resolve() failed: %v", err)
	}
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("second Resolve() made %d requests, want 0", got)
	}
}

func TestResolve_ChainConsolidation(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	// The remote reports a two-hop chain in one response; the store closes it.
	mock.SetResponse("A", testutil.NewQueryResponse(`{
		"redirects": [
			{"from": "A", "to": "B"},
			{"from": "B", "to": "C"}
		],
		"pages": [{"pageid": 3, "ns": 0, "title": "C"}]
	}`))
	// Identifier follow-up for both chain members.
	mock.SetResponse("A|B", testutil.NewQueryResponse(`{
		"pages": [
			{"pageid": 1, "ns": 0, "title": "A"},
			{"pageid": 2, "ns": 0, "title": "B"}
		]
	}`))

	r := newTestResolver(t, mock)
	if err := r.Resolve(context.Background(), query.Titles("A")); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	store := r.Store()
	if got, _ := store.CanonicalTitle("A"); got != "C" {
		t.Errorf("CanonicalTitle(A) = %q, want C after chain consolidation", got)
	}
	if got, _ := store.CanonicalPageID(1); got != 3 {
		t.Errorf("CanonicalPageID(1) = %d, want 3", got)
	}
}

func TestResolve_MixedKindsRejected(t *testing.T) {
	r := newTestResolver(t, testutil.NewMockWiki())
	err := r.Resolve(context.Background(), []query.Ref{query.Title("Cat"), query.PageID(3456)})
	if !errors.Is(err, client.ErrInvalidRequest) {
		t.Errorf("Resolve() = %v, want ErrInvalidRequest", err)
	}
}

func TestResolve_EmptyRejected(t *testing.T) {
	r := newTestResolver(t, testutil.NewMockWiki())
	err := r.Resolve(context.Background(), nil)
	if !errors.Is(err, client.ErrInvalidRequest) {
		t.Errorf("Resolve() = %v, want ErrInvalidRequest", err)
	}
}

func TestEnumerateAliases_BuildsBothDirections(t *testing.T) {
	mock := testutil.NewMockWiki()
	defer mock.Close()

	// Resolve pass: Dog redirects to Canis; follow-up fetches Dog's own id.
	mock.SetSequence("Dog",
		testutil.NewQueryResponse(`{
			"redirects": [{"from": "Dog", "to": "Canis"}],
			"pages": [{"pageid": 500, "ns": 0, "title": "Canis"}]
		}`),
		testutil.NewQueryResponse(`{
			"pages": [{"pageid": 4269567, "ns": 0, "title": "Dog"}]
		}`),
	)
	// Enumeration pass runs against the canonical form.
	mock.SetResponse("Canis", testutil.NewQueryResponse(`{
		"pages": [{"pageid": 500, "ns": 0, "title": "Canis",
			"redirects": [
				{"ns": 0, "title": "Dog", "pageid": 4269567},
				{"ns": 0, "title": "Puppy"}
			]}]
	}`))

	r := newTestResolver(t, mock)
	ctx := context.Background()
	if err := r.EnumerateAliases(ctx, query.Titles("Dog")); err != nil {
		t.Fatalf("EnumerateAliases() failed: %v", err)
	}

	store := r.Store()
	aliases, ok := store.Aliases("Canis")
	if !ok || len(aliases) != 3 || aliases[0] != "Canis" {
		t.Fatalf("Aliases(Canis) = (%v, %v), want [Canis Dog Puppy]", aliases, ok)
	}

	// Every discovered alias now canonicalizes to the target, including one
	// the resolve pass never saw.
	for _, alias := range []string{"Dog", "Puppy"} {
		if got, known := store.CanonicalTitle(alias); !known || got != "Canis" {
			t.Errorf("CanonicalTitle(%s) = (%q, %v), want Canis", alias, got, known)
		}
	}

	idAliases, ok := store.AliasPageIDs(500)
	if !ok || len(idAliases) != 2 {
		t.Errorf("AliasPageIDs(500) = (%v, %v), want two members", idAliases, ok)
	}
	if got, known := store.CanonicalPageID(4269567); !known || got != 500 {
		t.Errorf("CanonicalPageID(4269567) = (%d, %v), want 500", got, known)
	}

	// Idempotence across both the raw and canonical spellings.
	mock.Reset()
	if err := r.EnumerateAliases(ctx, query.Titles("Dog", "Canis", "Puppy")); err != nil {
		t.Fatalf("second EnumerateAliases() failed: %v", err)
	}
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("second EnumerateAliases() made %d requests, want 0", got)
	}
}

func TestEnumerateAliases_RevisionIDsRejected(t *testing.T) {
	r := newTestResolver(t, testutil.NewMockWiki())
	err := r.EnumerateAliases(context.Background(), query.RevisionIDs(11, 12))
	if !errors.Is(err, client.ErrInvalidRequest) {
		t.Errorf("EnumerateAliases() = %v, want ErrInvalidRequest", err)
	}
}
