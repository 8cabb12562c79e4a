// Package storage abstracts the tile trees the transfer reads from and
// writes to. Paths handed across the interface are always relative to the
// backend root, with forward slashes, so the same job identifiers work on
// every backend.
package storage

import (
	"context"
	"io/fs"
)

// Info describes one stored object.
type Info struct {
	Name string
	Size int64
}

// Backend is a flat object store over a tile tree.
type Backend interface {
	// Root returns the backend's root location, for display and logging.
	Root() string
	// List returns every object under the root whose name carries one of
	// the given extensions (all objects when exts is empty), sorted by
	// name. Extensions are matched case-insensitively and without dots.
	List(ctx context.Context, exts ...string) ([]Info, error)
	// Read returns the full contents of the named object.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write stores data under the named object, creating parent
	// directories as needed. The write is atomic: readers never observe a
	// partial object.
	Write(ctx context.Context, name string, data []byte, mode fs.FileMode) error
	// Stat reports the named object's size.
	Stat(ctx context.Context, name string) (Info, error)
	// Remove deletes the named object.
	Remove(ctx context.Context, name string) error
	// Move relocates the named object to an absolute destination path
	// outside the backend, used for quarantine-style dispositions.
	Move(ctx context.Context, name, absDest string) error
}
