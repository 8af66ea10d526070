package registry

import "testing"

func TestStore_AddGetRemove(t *testing.T) {
	s := NewStore()
	p := &Page{ID: "page-1"}

	if err := s.Add(p); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 registered page, got %d", s.Len())
	}

	got, ok := s.Get("page-1")
	if !ok || got != p {
		t.Fatalf("expected to get back the registered page, got %+v ok=%v", got, ok)
	}

	if err := s.Remove("page-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected 0 registered pages after remove, got %d", s.Len())
	}
	if _, ok := s.Get("page-1"); ok {
		t.Fatal("expected page-1 to be gone after Remove")
	}
}

func TestStore_AddDuplicateErrors(t *testing.T) {
	s := NewStore()
	if err := s.Add(&Page{ID: "page-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(&Page{ID: "page-1"}); err == nil {
		t.Fatal("expected an error registering a duplicate page id")
	}
}

func TestStore_RemoveUnknownIsNoOp(t *testing.T) {
	s := NewStore()
	if err := s.Remove("nope"); err != nil {
		t.Fatalf("expected removing an unknown page to be a no-op, got %v", err)
	}
}

func TestPage_CloseIsNilSafe(t *testing.T) {
	p := &Page{ID: "page-1"}
	if err := p.Close(); err != nil {
		t.Fatalf("expected Close on a bare Page to be a no-op, got %v", err)
	}
}

func TestStore_StatsCoversEveryPage(t *testing.T) {
	s := NewStore()
	if err := s.Add(&Page{ID: "page-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(&Page{ID: "page-2"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stats := s.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected one PageStats per registered page, got %d", len(stats))
	}
	seen := map[string]bool{}
	for _, st := range stats {
		seen[st.ID] = true
	}
	if !seen["page-1"] || !seen["page-2"] {
		t.Fatalf("expected stats for both pages, got %+v", stats)
	}
}

func TestPage_StatsZeroValueSafe(t *testing.T) {
	p := &Page{ID: "page-1"}
	st := p.stats()
	if st.ID != "page-1" || st.IssuedRefs != 0 || st.HistoryDepth != 0 {
		t.Fatalf("expected zero-value stats for a bare page, got %+v", st)
	}
}
