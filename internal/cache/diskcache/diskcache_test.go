package diskcache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestPathLayout(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	got := c.Path("srtm", 1, "N43E006", "tif")
	want := filepath.Join(c.Root(), "SRTM1", "N43E006.tif")
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestWriteAndExists(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path := c.Path("srtm", 3, "S16W142", "tif")
	if c.Exists(path) {
		t.Fatal("Exists before write")
	}
	payload := []byte("elevation payload")
	if err := c.Write(path, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !c.Exists(path) {
		t.Error("Exists after write is false")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(payload) {
		t.Errorf("read back %q, want %q", raw, payload)
	}
	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("cache dir holds %d entries, want only the tile", len(entries))
	}
}

func TestConcurrentWritesSameTile(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path := c.Path("srtm", 1, "N00E000", "tif")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Write(path, []byte("same bytes")); err != nil {
				t.Errorf("Write: %v", err)
			}
		}()
	}
	wg.Wait()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "same bytes" {
		t.Errorf("read back %q", raw)
	}
}
