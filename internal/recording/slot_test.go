package recording

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSlot_WriteOverwrites(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	slot, err := NewSlot(root)
	if err != nil {
		t.Fatalf("NewSlot: %v", err)
	}
	if filepath.Dir(filepath.Dir(slot.Path())) != root {
		t.Errorf("slot %q not below root %q", slot.Path(), root)
	}

	for _, content := range []string{"round one", "round two"} {
		if err := slot.Write([]byte(content)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got, err := os.ReadFile(slot.Path())
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(got) != content {
			t.Errorf("content = %q, want %q", got, content)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(slot.Path()))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("slot dir holds %d files, want exactly 1", len(entries))
	}
}

func TestSlot_Release(t *testing.T) {
	t.Parallel()

	slot, err := NewSlot(t.TempDir())
	if err != nil {
		t.Fatalf("NewSlot: %v", err)
	}
	if err := slot.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := slot.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := slot.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if !slot.Released() {
		t.Error("Released() = false")
	}
	if _, err := os.Stat(filepath.Dir(slot.Path())); !os.IsNotExist(err) {
		t.Errorf("slot dir still exists: %v", err)
	}
	if err := slot.Write([]byte("y")); !errors.Is(err, ErrSlotReleased) {
		t.Errorf("Write after Release = %v, want ErrSlotReleased", err)
	}
}

func TestSlot_DistinctPerSession(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a, _ := NewSlot(root)
	b, _ := NewSlot(root)
	if a.Path() == b.Path() {
		t.Error("two slots share a path")
	}
}
