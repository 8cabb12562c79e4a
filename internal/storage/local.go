package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tilexfer/internal/fileutil"
)

// LocalBackend serves a tile tree rooted at a filesystem directory.
type LocalBackend struct {
	root string
}

// NewLocal builds a backend over root. The directory does not need to
// exist yet for write-side use; List and Read fail naturally if it does
// not.
func NewLocal(root string) *LocalBackend {
	return &LocalBackend{root: filepath.Clean(root)}
}

func (b *LocalBackend) Root() string { return b.root }

func (b *LocalBackend) abs(name string) string {
	return filepath.Join(b.root, filepath.FromSlash(name))
}

func (b *LocalBackend) List(ctx context.Context, exts ...string) ([]Info, error) {
	wanted := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		wanted[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}

	var infos []Info
	err := filepath.WalkDir(b.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			return nil
		}
		if len(wanted) > 0 {
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(entry.Name()), "."))
			if _, ok := wanted[ext]; !ok {
				return nil
			}
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		fi, err := entry.Info()
		if err != nil {
			return err
		}
		infos = append(infos, Info{Name: filepath.ToSlash(rel), Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.root, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (b *LocalBackend) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.abs(name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (b *LocalBackend) Write(ctx context.Context, name string, data []byte, mode fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := b.abs(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directories for %s: %w", name, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (b *LocalBackend) Stat(ctx context.Context, name string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(b.abs(name))
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return Info{Name: name, Size: fi.Size()}, nil
}

func (b *LocalBackend) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(b.abs(name)); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (b *LocalBackend) Move(ctx context.Context, name, absDest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absDest), 0o755); err != nil {
		return fmt.Errorf("create directories for %s: %w", absDest, err)
	}
	if err := fileutil.MoveFile(b.abs(name), absDest); err != nil {
		return fmt.Errorf("move %s: %w", name, err)
	}
	return nil
}
