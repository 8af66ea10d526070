package frametracker

import (
	"context"
	"testing"

	"github.com/hazyhaar/domstate/cdptest"
	"github.com/hazyhaar/domstate/snapshot"
)

func mainFrameTree() map[string]any {
	return map[string]any{
		"frameTree": map[string]any{
			"frame": map[string]any{"id": "main", "loaderId": "ldr1", "url": "https://a.test/"},
		},
	}
}

func newInitialized(t *testing.T) (*Tracker, *cdptest.Fake) {
	t.Helper()
	fake := cdptest.New()
	fake.Respond("Page.getFrameTree", mainFrameTree())
	tr := New(fake, Config{})
	if err := tr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tr, fake
}

func TestCreateRef_UnknownFrame(t *testing.T) {
	tr, _ := newInitialized(t)
	if _, ok := tr.CreateRef("missing", 1); ok {
		t.Fatal("CreateRef on unknown frame should fail")
	}
}

func TestIsValid_AfterIssue(t *testing.T) {
	tr, _ := newInitialized(t)
	ref, ok := tr.CreateRef("main", 42)
	if !ok {
		t.Fatal("CreateRef failed")
	}
	if !tr.IsValid(ref) {
		t.Fatal("freshly issued ref should be valid")
	}
}

func TestIssuedRefCount_TracksIssueAndPrune(t *testing.T) {
	tr, _ := newInitialized(t)
	if n := tr.IssuedRefCount(); n != 0 {
		t.Fatalf("expected 0 issued refs on a fresh tracker, got %d", n)
	}

	r1, _ := tr.CreateRef("main", 1)
	tr.CreateRef("main", 2)
	if n := tr.IssuedRefCount(); n != 2 {
		t.Fatalf("expected 2 issued refs, got %d", n)
	}

	tr.PruneRefs([]snapshot.ScopedElementRef{r1})
	if n := tr.IssuedRefCount(); n != 1 {
		t.Fatalf("expected 1 issued ref after pruning one, got %d", n)
	}
}

func TestCrossDocumentNavigation_InvalidatesPriorRefs(t *testing.T) {
	tr, fake := newInitialized(t)
	ref, ok := tr.CreateRef("main", 42)
	if !ok {
		t.Fatal("CreateRef failed")
	}

	fake.Emit("Page.frameNavigated", map[string]any{
		"frame": map[string]any{"id": "main", "loaderId": "ldr2", "url": "https://a.test/next"},
	})

	if tr.IsValid(ref) {
		t.Fatal("ref should be invalid after cross-document navigation")
	}

	inv := tr.DrainInvalidations()
	if len(inv) != 1 || inv[0] != ref {
		t.Fatalf("expected exactly the stale ref invalidated, got %+v", inv)
	}

	// Draining again returns nothing: invalidations fire exactly once.
	if more := tr.DrainInvalidations(); len(more) != 0 {
		t.Fatalf("second drain should be empty, got %+v", more)
	}
}

func TestSameDocumentNavigation_NoInvalidation(t *testing.T) {
	tr, fake := newInitialized(t)
	ref, _ := tr.CreateRef("main", 42)

	fake.Emit("Page.frameNavigated", map[string]any{
		"frame": map[string]any{"id": "main", "loaderId": "ldr1", "url": "https://a.test/#frag"},
	})

	if !tr.IsValid(ref) {
		t.Fatal("same-document navigation must not invalidate refs")
	}
	if inv := tr.DrainInvalidations(); len(inv) != 0 {
		t.Fatalf("expected no invalidations, got %+v", inv)
	}
}

func TestFrameDetached_InvalidatesAllItsRefs(t *testing.T) {
	tr, fake := newInitialized(t)
	ref, _ := tr.CreateRef("main", 1)

	fake.Emit("Page.frameDetached", map[string]any{"frameId": "main"})

	if tr.IsValid(ref) {
		t.Fatal("ref in detached frame should be invalid")
	}
	inv := tr.DrainInvalidations()
	if len(inv) != 1 || inv[0] != ref {
		t.Fatalf("expected the detached frame's ref invalidated, got %+v", inv)
	}
}

func TestSerializeParseRef_RoundTrip(t *testing.T) {
	tr, _ := newInitialized(t)
	ref, _ := tr.CreateRef("main", 7)

	s := tr.SerializeRef(ref)
	got, ok := tr.ParseRef(s)
	if !ok {
		t.Fatalf("ParseRef(%q) failed", s)
	}
	if got != ref {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ref)
	}
}

func TestParseRef_StaleAfterNavigation(t *testing.T) {
	tr, fake := newInitialized(t)
	ref, _ := tr.CreateRef("main", 7)
	s := tr.SerializeRef(ref)

	fake.Emit("Page.frameNavigated", map[string]any{
		"frame": map[string]any{"id": "main", "loaderId": "ldr2", "url": "https://a.test/x"},
	})

	if _, ok := tr.ParseRef(s); ok {
		t.Fatal("ParseRef should fail once the owning frame has cross-navigated")
	}
}

// Eviction trims the oldest issued refs once MaxIssuedRefs is exceeded,
// but this must happen silently: evicted refs must
// never show up through DrainInvalidations, unlike a real invalidation.
func TestEviction_DropsOldestSilently(t *testing.T) {
	tr, _ := newInitialized(t)
	tr.cfg.MaxIssuedRefs = 3
	tr.cfg.EvictionBatchSize = 1

	tr.CreateRef("main", 1)
	tr.CreateRef("main", 2)
	tr.CreateRef("main", 3)
	tr.CreateRef("main", 4) // should evict the oldest (backend 1)

	if inv := tr.DrainInvalidations(); len(inv) != 0 {
		t.Fatalf("eviction must be silent, got invalidations %+v", inv)
	}
}
