package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchWALFiresOnWalWrite(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "NoteStore.sqlite")
	if err := os.WriteFile(storePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed store file: %v", err)
	}

	w, err := WatchWAL(storePath)
	if err != nil {
		t.Fatalf("WatchWAL() error = %v", err)
	}
	defer w.Close()

	walPath := storePath + "-wal"
	if err := os.WriteFile(walPath, []byte("wal bytes"), 0o644); err != nil {
		t.Fatalf("write wal file: %v", err)
	}

	select {
	case _, ok := <-w.Events:
		if !ok {
			t.Fatalf("Events channel closed before delivering an event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a wal-write event")
	}
}

func TestWatchWALIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "NoteStore.sqlite")
	if err := os.WriteFile(storePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed store file: %v", err)
	}

	w, err := WatchWAL(storePath)
	if err != nil {
		t.Fatalf("WatchWAL() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("y"), 0o644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}

	select {
	case <-w.Events:
		t.Fatalf("Events fired for an unrelated file write")
	case <-time.After(300 * time.Millisecond):
		// expected: no event
	}
}
