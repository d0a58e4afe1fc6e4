// Package archive is the append-only durable journal: one
// JSONL file per (source, ref, date), written through a pluggable backend
// with native-filesystem/host-storage probe-and-fallback selection,
// per-path FIFO serialization, and weekly retention rollup.
package archive

import "context"

// Backend is the low-level I/O surface a concrete archive writer must
// provide. Both the native filesystem writer and a host-storage adapter
// implement it, so Archive can probe and swap between them without
// knowing which is underneath.
type Backend interface {
	Mkdir(ctx context.Context, dir string) error
	WriteFile(ctx context.Context, path string, data []byte) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	AppendFile(ctx context.Context, path string, data []byte) error
	Remove(ctx context.Context, path string) error
	// ListDir returns the base names of entries (files and directories)
	// directly under dir, or an empty slice if dir doesn't exist. Used by
	// retention to enumerate source directories and per-ref files.
	ListDir(ctx context.Context, dir string) ([]string, error)
}
