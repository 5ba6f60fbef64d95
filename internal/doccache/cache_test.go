package doccache

import "testing"

func TestGetMissReturnsFalse(t *testing.T) {
	c := New[string]()
	if _, ok := c.Get("note-1", 1); ok {
		t.Fatalf("Get() on empty cache ok = true, want false")
	}
}

func TestPutThenGetAtSameVersionHits(t *testing.T) {
	c := New[string]()
	c.Put("note-1", 5, "decoded text")

	got, ok := c.Get("note-1", 5)
	if !ok || got != "decoded text" {
		t.Fatalf("Get() = (%q, %v), want (\"decoded text\", true)", got, ok)
	}
}

func TestGetAtNewerVersionMisses(t *testing.T) {
	c := New[string]()
	c.Put("note-1", 5, "stale")

	if _, ok := c.Get("note-1", 6); ok {
		t.Fatalf("Get() at a newer version ok = true, want false (stale entry should miss)")
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	c := New[string]()
	c.Put("note-1", 5, "decoded text")
	c.Remove("note-1")

	if _, ok := c.Get("note-1", 5); ok {
		t.Fatalf("Get() after Remove() ok = true, want false")
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}
