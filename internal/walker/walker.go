package walker

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileInfo represents an entry found under the walked subtree
type FileInfo struct {
	Path    string // Absolute path
	RelPath string // Slash separated path relative to the mirror root
	IsDir   bool
	Size    int64
	ModTime int64 // Unix timestamp
	Mode    os.FileMode
}

// Walker walks one subtree of a mirror root with exclude pattern support
type Walker struct {
	root     string
	base     string
	excludes []string
}

// NewWalker creates a walker for root. base is the slash separated path of
// root relative to the mirror root and is used for exclude matching.
func NewWalker(root, base string, excludes []string) (*Walker, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	info, err := os.Lstat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	return &Walker{
		root:     absRoot,
		base:     filepath.ToSlash(base),
		excludes: excludes,
	}, nil
}

// Walk returns every directory and regular file under root, parents before
// children, sorted by path. Excluded directories are not descended into.
// Symbolic links and other special files are skipped.
func (w *Walker) Walk(ctx context.Context) ([]FileInfo, error) {
	var entries []FileInfo

	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == w.root {
			return nil
		}

		relPath, err := filepath.Rel(w.root, p)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}
		relPath = path.Join(w.base, filepath.ToSlash(relPath))

		if w.isExcluded(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("get file info: %w", err)
		}

		entries = append(entries, FileInfo{
			Path:    p,
			RelPath: relPath,
			IsDir:   d.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
			Mode:    info.Mode(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	return entries, nil
}

// Files returns only the regular files of Walk.
func (w *Walker) Files(ctx context.Context) ([]FileInfo, error) {
	entries, err := w.Walk(ctx)
	if err != nil {
		return nil, err
	}
	files := entries[:0]
	for _, e := range entries {
		if !e.IsDir {
			files = append(files, e)
		}
	}
	return files, nil
}

// isExcluded checks if a path matches any exclude pattern
func (w *Walker) isExcluded(p string) bool {
	for _, pattern := range w.excludes {
		// Handle directory patterns (ending with /)
		if strings.HasSuffix(pattern, "/") {
			dirPattern := strings.TrimSuffix(pattern, "/")
			parts := strings.Split(p, "/")
			for i := 1; i <= len(parts); i++ {
				subPath := strings.Join(parts[:i], "/")
				if matched, _ := doublestar.Match(dirPattern, subPath); matched {
					return true
				}
			}
		} else {
			if matched, _ := doublestar.Match(pattern, p); matched {
				return true
			}
		}
	}
	return false
}
