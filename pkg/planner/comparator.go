package planner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yuya-takeyama/mirror-sync/internal/checksum"
	"github.com/yuya-takeyama/mirror-sync/pkg/fserr"
)

// Comparator classifies a source directory against its replica counterpart.
type Comparator struct {
	opts Options
}

func NewComparator(opts Options) *Comparator {
	if opts.Mode == "" {
		opts.Mode = CompareContent
	}
	return &Comparator{opts: opts}
}

// Compare lists both directories and classifies their immediate children.
// It fails with a NotFound or PermissionDenied *fserr.Error when either
// directory cannot be listed.
func (c *Comparator) Compare(ctx context.Context, sourceDir, replicaDir, relPath string) (*Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, err := ReadView(sourceDir)
	if err != nil {
		return nil, err
	}
	replica, err := ReadView(replicaDir)
	if err != nil {
		return nil, err
	}

	phase1, err := Phase1Classify(source, replica, relPath, c.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to classify %s: %w", sourceDir, err)
	}

	return Phase2Resolve(phase1, func(name string) (bool, error) {
		srcPath := filepath.Join(sourceDir, name)
		dstPath := filepath.Join(replicaDir, name)
		same, err := checksum.SameContent(srcPath, dstPath)
		if err != nil {
			slog.Warn("content comparison failed, treating as changed", "source", srcPath, "replica", dstPath, "error", err)
		}
		return same, err
	}), nil
}

// ReadView lists the immediate children of dir.
func ReadView(dir string) (DirectoryView, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return DirectoryView{}, fserr.Wrap("list", dir, err)
	}

	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		return DirectoryView{}, fserr.Wrap("list", absDir, err)
	}

	view := DirectoryView{
		Path:    absDir,
		Entries: make(map[string]EntryInfo, len(dirEntries)),
	}
	for _, de := range dirEntries {
		entry := EntryInfo{
			Name:    de.Name(),
			IsDir:   de.IsDir(),
			Regular: de.Type().IsRegular(),
		}
		if entry.Regular {
			info, err := de.Info()
			if err != nil {
				// removed between listing and stat
				if os.IsNotExist(err) {
					continue
				}
				return DirectoryView{}, fserr.Wrap("stat", filepath.Join(absDir, de.Name()), err)
			}
			entry.Size = info.Size()
			entry.ModTime = info.ModTime()
		}
		view.Entries[entry.Name] = entry
	}

	return view, nil
}
