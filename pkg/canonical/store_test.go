package canonical

import (
	"strings"
	"testing"

	"github.com/mwtools/wikiquery/pkg/reduce"
)

func strp(s string) *string { return &s }

func TestStore_CanonicalTitle(t *testing.T) {
	s := NewStore()
	res := reduce.NewResolution()
	res.Norms["cat"] = "Cat"
	res.Redirects["Puppy"] = strp("Dog")
	res.Redirects["No Such Page"] = nil
	res.IDs["Cat"] = 3456
	res.IDs["Dog"] = 4269567
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}

	tests := []struct {
		name      string
		title     string
		want      string
		wantKnown bool
	}{
		{name: "normalized then self", title: "cat", want: "Cat", wantKnown: true},
		{name: "redirect", title: "Puppy", want: "Dog", wantKnown: true},
		{name: "canonical passes through", title: "Dog", want: "Dog", wantKnown: true},
		{name: "missing", title: "No Such Page", want: "", wantKnown: false},
		{name: "unknown passes through", title: "Never Seen", want: "Never Seen", wantKnown: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := s.CanonicalTitle(tt.title)
			if got != tt.want || known != tt.wantKnown {
				t.Errorf("CanonicalTitle(%q) = (%q, %v), want (%q, %v)",
					tt.title, got, known, tt.want, tt.wantKnown)
			}
		})
	}
}

func TestStore_ApplyResolution_SelfRedirects(t *testing.T) {
	s := NewStore()
	res := reduce.NewResolution()
	res.IDs["Cat"] = 3456
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}

	// A resolved non-redirect page is marked done via a self entry.
	if !s.ResolvedTitle("Cat") {
		t.Error("ResolvedTitle(Cat) = false after resolution")
	}
	target, ok := s.Redirect("Cat")
	if !ok || target == nil || *target != "Cat" {
		t.Errorf("Redirect(Cat) = (%v, %v), want self entry", target, ok)
	}
}

func TestStore_ApplyResolution_RedefinitionRejected(t *testing.T) {
	s := NewStore()
	first := reduce.NewResolution()
	first.Norms["cat"] = "Cat"
	if err := s.ApplyResolution(first); err != nil {
		t.Fatalf("first ApplyResolution() failed: %v", err)
	}

	second := reduce.NewResolution()
	second.Norms["cat"] = "CAT"
	second.Norms["dog"] = "Dog"
	second.IDs["Dog"] = 4269567

	err := s.ApplyResolution(second)
	if err == nil {
		t.Fatal("Expected redefinition error")
	}
	if !strings.Contains(err.Error(), "normalization redefinition") {
		t.Errorf("err = %v", err)
	}

	// The rejected merge must not partially apply.
	if got, _ := s.CanonicalTitle("cat"); got != "Cat" {
		t.Errorf("existing mapping changed to %q", got)
	}
	if got, _ := s.CanonicalTitle("dog"); got != "dog" {
		t.Errorf("rejected merge leaked norm entry: %q", got)
	}
	if _, ok := s.PageIDOf("Dog"); ok {
		t.Error("rejected merge leaked id entry")
	}

	// Re-asserting an identical mapping is fine.
	again := reduce.NewResolution()
	again.Norms["cat"] = "Cat"
	if err := s.ApplyResolution(again); err != nil {
		t.Errorf("identical re-assertion rejected: %v", err)
	}
}

func TestStore_ApplyAliases(t *testing.T) {
	s := NewStore()
	res := reduce.NewResolution()
	res.IDs["Canis"] = 500
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}

	set := reduce.NewAliasSet()
	set.Collected["Canis"] = []string{"Canis", "Dog", "Puppy"}
	set.IDs["Canis"] = 500
	set.IDs["Dog"] = 4269567
	set.IDs["Puppy"] = -1
	s.ApplyAliases(set)

	aliases, ok := s.Aliases("Canis")
	if !ok || len(aliases) != 3 {
		t.Fatalf("Aliases(Canis) = (%v, %v)", aliases, ok)
	}
	if aliases[0] != "Canis" {
		t.Errorf("canonical title must be the first member, got %q", aliases[0])
	}

	// Reverse entries for every member.
	for _, alias := range []string{"Dog", "Puppy"} {
		got, known := s.CanonicalTitle(alias)
		if !known || got != "Canis" {
			t.Errorf("CanonicalTitle(%s) = (%q, %v), want Canis", alias, got, known)
		}
	}

	// Numeric equivalents only for members with known ids.
	if got, known := s.CanonicalPageID(4269567); !known || got != 500 {
		t.Errorf("CanonicalPageID(4269567) = (%d, %v), want 500", got, known)
	}
	idAliases, ok := s.AliasPageIDs(500)
	if !ok || len(idAliases) != 2 {
		t.Fatalf("AliasPageIDs(500) = (%v, %v), want [500 4269567]", idAliases, ok)
	}

	// Enumerating again with an overlapping set must not duplicate members.
	s.ApplyAliases(set)
	aliases, _ = s.Aliases("Canis")
	if len(aliases) != 3 {
		t.Errorf("repeated ApplyAliases duplicated members: %v", aliases)
	}
}

func TestStore_DerivePageIDRedirects(t *testing.T) {
	s := NewStore()
	res := reduce.NewResolution()
	res.Redirects["Puppy"] = strp("Dog")
	res.Redirects["Ghost"] = nil
	res.IDs["Puppy"] = 99
	res.IDs["Dog"] = 4269567
	res.IDs["Ghost"] = 42
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}

	s.DerivePageIDRedirects()

	if got, known := s.CanonicalPageID(99); !known || got != 4269567 {
		t.Errorf("CanonicalPageID(99) = (%d, %v), want 4269567", got, known)
	}
	// A redirect to a missing entity derives a missing id entry.
	if _, known := s.CanonicalPageID(42); known {
		t.Error("CanonicalPageID(42) should be known missing")
	}
	if !s.ResolvedPageID(42) {
		t.Error("ResolvedPageID(42) = false, want recorded nil entry")
	}
}

func TestStore_Consolidate(t *testing.T) {
	s := NewStore()
	res := reduce.NewResolution()
	res.Redirects["A"] = strp("B")
	res.Redirects["B"] = strp("C")
	res.Redirects["C"] = strp("D")
	res.IDs["D"] = 4
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}

	s.Consolidate()

	for _, from := range []string{"A", "B", "C"} {
		if got, _ := s.CanonicalTitle(from); got != "D" {
			t.Errorf("CanonicalTitle(%s) = %q, want D", from, got)
		}
	}
}

func TestStore_Consolidate_CycleDoesNotHang(t *testing.T) {
	s := NewStore()
	res := reduce.NewResolution()
	res.Redirects["X"] = strp("Y")
	res.Redirects["Y"] = strp("X")
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}

	// Must terminate; the frozen target just has to stay within the cycle.
	s.Consolidate()

	got, known := s.CanonicalTitle("X")
	if !known || (got != "X" && got != "Y") {
		t.Errorf("CanonicalTitle(X) = (%q, %v) after cycle consolidation", got, known)
	}
}

func TestStore_MissingIDTargets(t *testing.T) {
	s := NewStore()
	res := reduce.NewResolution()
	res.Redirects["Puppy"] = strp("Dog")
	res.IDs["Dog"] = 4269567
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}

	missing := s.MissingIDTargets()
	if len(missing) != 1 || missing[0] != "Puppy" {
		t.Errorf("MissingIDTargets() = %v, want [Puppy]", missing)
	}

	s.RecordMissingIDs(missing)
	if id, ok := s.PageIDOf("Puppy"); !ok || id != -1 {
		t.Errorf("PageIDOf(Puppy) = (%d, %v), want -1", id, ok)
	}
	if got := s.MissingIDTargets(); len(got) != 0 {
		t.Errorf("MissingIDTargets() after recording = %v, want empty", got)
	}
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := NewStore()
	res := reduce.NewResolution()
	res.Norms["cat"] = "Cat"
	res.Redirects["Puppy"] = strp("Dog")
	res.Redirects["Ghost"] = nil
	res.IDs["Dog"] = 4269567
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}
	set := reduce.NewAliasSet()
	set.Collected["Dog"] = []string{"Dog", "Puppy"}
	set.IDs["Dog"] = 4269567
	s.ApplyAliases(set)
	s.DerivePageIDRedirects()

	snap := s.Snapshot()

	// The snapshot is a deep copy: later mutation must not leak into it.
	more := reduce.NewResolution()
	more.IDs["Cat"] = 3456
	if err := s.ApplyResolution(more); err != nil {
		t.Fatalf("ApplyResolution() failed: %v", err)
	}
	if _, ok := snap.IDs["Cat"]; ok {
		t.Error("snapshot observed mutation applied after it was taken")
	}

	restored := NewStore()
	restored.Restore(snap)

	if got, _ := restored.CanonicalTitle("cat"); got != "Cat" {
		t.Errorf("restored CanonicalTitle(cat) = %q", got)
	}
	if got, _ := restored.CanonicalTitle("Puppy"); got != "Dog" {
		t.Errorf("restored CanonicalTitle(Puppy) = %q", got)
	}
	if _, known := restored.CanonicalTitle("Ghost"); known {
		t.Error("restored store lost missing entry")
	}
	aliases, ok := restored.Aliases("Dog")
	if !ok || len(aliases) != 2 {
		t.Errorf("restored Aliases(Dog) = (%v, %v)", aliases, ok)
	}

	before := s.Stats()
	after := restored.Stats()
	// The restored store misses only the post-snapshot mutation.
	if after["ids"] != before["ids"]-1 {
		t.Errorf("restored ids = %d, want %d", after["ids"], before["ids"]-1)
	}
}

func TestStore_RestoreEmptySnapshot(t *testing.T) {
	s := NewStore()
	s.Restore(Snapshot{})

	// All maps must be usable after restoring a zero snapshot.
	res := reduce.NewResolution()
	res.IDs["Cat"] = 3456
	if err := s.ApplyResolution(res); err != nil {
		t.Fatalf("ApplyResolution() after empty restore failed: %v", err)
	}
	if id, ok := s.PageIDOf("Cat"); !ok || id != 3456 {
		t.Errorf("PageIDOf(Cat) = (%d, %v)", id, ok)
	}
}
