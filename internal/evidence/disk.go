package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskSink writes each payload to its own file under Root.
type DiskSink struct {
	root string
}

// NewDiskSink creates root if needed.
func NewDiskSink(root string) (*DiskSink, error) {
	root = filepath.Clean(strings.TrimSpace(root))
	if root == "" || root == "." || root == string(filepath.Separator) {
		return nil, fmt.Errorf("evidence: disk root required (e.g. disk:///var/lib/secops-mcp/evidence)")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("evidence: create disk root: %w", err)
	}
	return &DiskSink{root: root}, nil
}

// Root returns the directory records are written under.
func (d *DiskSink) Root() string { return d.root }

// Put writes payload to a temp file and renames it into place.
func (d *DiskSink) Put(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(d.root, filepath.FromSlash(key))
	if !strings.HasPrefix(target, d.root+string(filepath.Separator)) {
		return fmt.Errorf("evidence: key %q escapes disk root", key)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".evidence-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Close is a no-op.
func (d *DiskSink) Close() error { return nil }
