package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
)

// probe validates a backend with a mkdir → write → read → append →
// re-read → unlink sequence, confirming the backend
// can actually round-trip data rather than merely accepting calls
// silently (a host-storage shim might ack writes it never persists).
func probe(ctx context.Context, b Backend, dir string) error {
	if err := b.Mkdir(ctx, dir); err != nil {
		return fmt.Errorf("probe mkdir: %w", err)
	}

	path := filepath.Join(dir, ".probe")
	const first = "probe\n"
	if err := b.WriteFile(ctx, path, []byte(first)); err != nil {
		return fmt.Errorf("probe write: %w", err)
	}

	got, err := b.ReadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("probe read: %w", err)
	}
	if !bytes.Equal(got, []byte(first)) {
		return fmt.Errorf("probe read mismatch: got %q want %q", got, first)
	}

	const second = "probe2\n"
	if err := b.AppendFile(ctx, path, []byte(second)); err != nil {
		return fmt.Errorf("probe append: %w", err)
	}

	got, err = b.ReadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("probe re-read: %w", err)
	}
	if !bytes.Equal(got, []byte(first+second)) {
		return fmt.Errorf("probe re-read mismatch: got %q want %q", got, first+second)
	}

	if err := b.Remove(ctx, path); err != nil {
		return fmt.Errorf("probe unlink: %w", err)
	}

	return nil
}
