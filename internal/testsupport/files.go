package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func tileName(i int) string {
	return fmt.Sprintf("tile-%03d.bmp", i)
}

// TileName returns the canonical test tile filename for index i.
func TileName(i int) string {
	return tileName(i)
}

// WriteTile writes a fake tile of the requested size under dir and returns
// its relative name. A size <= 0 writes an empty file.
func WriteTile(t testing.TB, dir string, i int, size int) string {
	t.Helper()

	name := tileName(i)
	data := make([]byte, max(size, 0))
	for j := range data {
		data[j] = byte(i)
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return name
}

// WriteTiles writes n non-empty tiles under dir and returns their names.
func WriteTiles(t testing.TB, dir string, n int) []string {
	t.Helper()

	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, WriteTile(t, dir, i, 16+i))
	}
	return names
}
