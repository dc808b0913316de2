package resource_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/pine2k/pine2k/resource"
)

func TestWriteFindRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.tmp")
	tbl, err := resource.Open(path, 16, resource.WithCache(8))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tbl.Close()

	off, err := tbl.Write(0xABCD, []byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := tbl.Find(0xABCD)
	if got != off {
		t.Fatalf("Find = %d, want %d", got, off)
	}

	r, err := tbl.At(got)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("payload = %q, want %q", buf, "hello")
	}
}

func TestDuplicateWriteRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.tmp")
	tbl, err := resource.Open(path, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tbl.Close()

	if _, err := tbl.Write(1, []byte("a")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if _, err := tbl.Write(1, []byte("b")); err != resource.ErrDuplicate {
		t.Fatalf("second Write err = %v, want ErrDuplicate", err)
	}
}

func TestFindMissingReturnsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.tmp")
	tbl, err := resource.Open(path, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tbl.Close()

	if got := tbl.Find(999); got != 0 {
		t.Fatalf("Find(missing) = %d, want 0", got)
	}
}

func TestResetClearsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.tmp")
	tbl, err := resource.Open(path, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tbl.Close()

	tbl.Write(1, []byte("x"))
	if err := tbl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := tbl.Find(1); got != 0 {
		t.Fatalf("Find after reset = %d, want 0", got)
	}
	if _, err := tbl.Write(1, []byte("y")); err != nil {
		t.Fatalf("Write after reset: %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.tmp")
	tbl, err := resource.Open(path, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	off, err := tbl.Write(42, []byte("persist"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	tbl.Close()

	tbl2, err := resource.Open(path, 8)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tbl2.Close()
	if got := tbl2.Find(42); got != off {
		t.Fatalf("Find after reopen = %d, want %d", got, off)
	}
}
