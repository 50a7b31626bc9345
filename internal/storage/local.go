package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/logger"
	"github.com/kylenessen/ramble/internal/types"
)

// Local is a filesystem-backed Store rooted at a single directory. It mirrors
// the cloud layout (inbox/processing/processed/failed subdirectories) and is
// used for development and tests.
type Local struct {
	root string
	now  func() time.Time
	log  *logger.Logger
}

// NewLocal creates a local store, ensuring the lifecycle directories exist.
func NewLocal(root string) (*Local, error) {
	for _, dir := range []string{FolderInbox, FolderProcessing, FolderProcessed, FolderFailed} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return &Local{root: root, now: time.Now, log: logger.New()}, nil
}

func (l *Local) ListPending(ctx context.Context) ([]types.PendingItem, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, FolderInbox))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, faults.Transport("storage.list", err)
	}

	var items []types.PendingItem
	for _, e := range entries {
		if e.IsDir() || !IsAudioFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		created := info.ModTime()
		if ts, ok := RecordingTimeFromName(e.Name(), l.now()); ok {
			created = ts
		}
		p := filepath.Join(l.root, FolderInbox, e.Name())
		items = append(items, types.PendingItem{
			Name:        e.Name(),
			Path:        p,
			Size:        info.Size(),
			CreatedTime: created,
			ID:          p,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (l *Local) Claim(ctx context.Context, item types.PendingItem) (string, error) {
	dst := filepath.Join(l.root, FolderProcessing, item.Name)
	if err := os.Rename(item.Path, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", faults.ClaimConflict("storage.claim", err)
		}
		return "", faults.Transport("storage.claim", err)
	}
	l.log.WithItem(item.Name).Info("moved to processing")
	return dst, nil
}

func (l *Local) Download(ctx context.Context, location, filename string) (string, error) {
	workDir := filepath.Join(os.TempDir(), "ramble")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", faults.Transport("storage.download", err)
	}
	local := filepath.Join(workDir, filename)
	if err := copyFile(location, local); err != nil {
		return "", faults.Transport("storage.download", err)
	}
	return local, nil
}

func (l *Local) Upload(ctx context.Context, localPath, location string) error {
	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return faults.Transport("storage.upload", err)
	}
	if err := copyFile(localPath, location); err != nil {
		return faults.Transport("storage.upload", err)
	}
	return nil
}

func (l *Local) Delete(ctx context.Context, location string) error {
	if err := os.Remove(location); err != nil {
		return faults.Transport("storage.delete", err)
	}
	return nil
}

func (l *Local) MarkFailed(ctx context.Context, item types.PendingItem) error {
	return l.moveToFailed(item.Path, item.Name)
}

func (l *Local) MarkFailedFrom(ctx context.Context, processingLocation string) error {
	return l.moveToFailed(processingLocation, filepath.Base(processingLocation))
}

func (l *Local) moveToFailed(from, name string) error {
	dst := filepath.Join(l.root, FolderFailed, name)
	if err := os.Rename(from, dst); err != nil {
		return faults.Transport("storage.mark_failed", err)
	}
	l.log.WithItem(name).Warn("moved to failed")
	return nil
}

func (l *Local) ProcessedPath(parts ...string) string {
	return filepath.Join(append([]string{l.root, FolderProcessed}, parts...)...)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
