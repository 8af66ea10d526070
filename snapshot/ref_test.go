package snapshot

import "testing"

func TestScopedElementRef_SerializeMainFrame(t *testing.T) {
	r := ScopedElementRef{BackendNodeID: 42, LoaderID: "ldr1", IsMainFrame: true}
	got := r.Serialize()
	want := "ldr1:42"
	if got != want {
		t.Fatalf("Serialize() = %q, want %q", got, want)
	}
}

func TestScopedElementRef_SerializeIframe(t *testing.T) {
	r := ScopedElementRef{BackendNodeID: 7, FrameID: "frm1", LoaderID: "ldr2"}
	got := r.Serialize()
	want := "frm1:ldr2:7"
	if got != want {
		t.Fatalf("Serialize() = %q, want %q", got, want)
	}
}

func TestParseSerializedRef_RoundTrip(t *testing.T) {
	cases := []ScopedElementRef{
		{BackendNodeID: 1, LoaderID: "ldrA", IsMainFrame: true},
		{BackendNodeID: 99, FrameID: "frmX", LoaderID: "ldrB"},
	}
	for _, want := range cases {
		s := want.Serialize()
		got, ok := ParseSerializedRef(s)
		if !ok {
			t.Fatalf("ParseSerializedRef(%q) failed", s)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestParseSerializedRef_Malformed(t *testing.T) {
	for _, s := range []string{"", "onlyone", "a:b:c:d", "a:notanumber"} {
		if _, ok := ParseSerializedRef(s); ok {
			t.Fatalf("ParseSerializedRef(%q) unexpectedly succeeded", s)
		}
	}
}

func TestCompositeNodeKey_Stable(t *testing.T) {
	a := NewCompositeNodeKey("frm1", "ldr1", 5)
	b := ReadableNode{FrameID: "frm1", LoaderID: "ldr1", BackendNodeID: 5}.CompositeKey()
	if a != b {
		t.Fatalf("composite keys differ: %q vs %q", a, b)
	}
}
