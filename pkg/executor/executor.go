package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/yuya-takeyama/mirror-sync/internal/walker"
	"github.com/yuya-takeyama/mirror-sync/pkg/fserr"
	"github.com/yuya-takeyama/mirror-sync/pkg/logger"
)

// Stats counts leaf files touched. Directories are never counted.
type Stats struct {
	Created     int
	Copied      int
	Deleted     int
	BytesCopied int64
}

func (s *Stats) Add(o Stats) {
	s.Created += o.Created
	s.Copied += o.Copied
	s.Deleted += o.Deleted
	s.BytesCopied += o.BytesCopied
}

func (s Stats) Total() int {
	return s.Created + s.Copied + s.Deleted
}

// Failure is an entry that could not be applied. The run carries on past it.
type Failure struct {
	Op   string
	Path string
	Kind fserr.Kind
	Err  error
}

type Result struct {
	Stats    Stats
	Records  []FileRecord
	Failures []Failure
}

// FileRecord is a logged record together with both ends of the action.
// Create and copy records log Source; delete records log Target.
type FileRecord struct {
	logger.Record
	Source string
	Target string
	Size   int64
}

func (r *Result) Merge(o Result) {
	r.Stats.Add(o.Stats)
	r.Records = append(r.Records, o.Records...)
	r.Failures = append(r.Failures, o.Failures...)
}

// Executor applies copy and delete actions to the replica one entry at a
// time and reports every leaf file it touches to the logger.
type Executor struct {
	logger   logger.Logger
	excludes []string
}

// NewExecutor returns an executor reporting to l. A nil l discards records.
func NewExecutor(l logger.Logger, excludes []string) *Executor {
	if l == nil {
		l = &logger.NullLogger{}
	}
	return &Executor{
		logger:   l,
		excludes: excludes,
	}
}

// Copy copies each named entry from sourceDir into replicaDir. creation
// selects whether files are recorded as created or copied. An existing
// replica entry of the other type is removed first. relDir is the path of
// both directories relative to their roots.
//
// Per-entry failures are collected in the result; the returned error is
// non-nil only when ctx was cancelled.
func (e *Executor) Copy(ctx context.Context, names []string, sourceDir, replicaDir, relDir string, creation bool) (Result, error) {
	var result Result
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		src := filepath.Join(sourceDir, name)
		dst := filepath.Join(replicaDir, name)

		info, err := os.Lstat(src)
		if err != nil {
			e.fail(&result, "copy", src, err)
			continue
		}

		if !creation {
			if err := e.clearMismatch(ctx, &result, info, dst, path.Join(relDir, name)); err != nil {
				if isCanceled(err) {
					return result, err
				}
				e.fail(&result, "replace", dst, err)
				continue
			}
		}

		if info.IsDir() {
			if err := e.copyTree(ctx, &result, src, dst, path.Join(relDir, name), creation); err != nil {
				return result, err
			}
			continue
		}

		n, err := copyFile(src, dst, info)
		if err != nil {
			e.fail(&result, "copy", src, err)
			continue
		}
		e.record(&result, kindFor(creation), src, dst, n)
	}
	return result, nil
}

// Delete removes each named entry from replicaDir, whose path relative to
// the replica root is relDir. A directory is emptied file by file, each file
// recorded. Excluded entries inside it are kept, and so is every directory
// on the way to them.
func (e *Executor) Delete(ctx context.Context, names []string, replicaDir, relDir string) (Result, error) {
	var result Result
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.deleteEntry(ctx, &result, filepath.Join(replicaDir, name), path.Join(relDir, name)); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (e *Executor) deleteEntry(ctx context.Context, result *Result, target, rel string) error {
	info, err := os.Lstat(target)
	if err != nil {
		e.fail(result, "delete", target, err)
		return nil
	}

	if !info.IsDir() {
		if err := os.Remove(target); err != nil {
			e.fail(result, "delete", target, err)
			return nil
		}
		e.record(result, logger.KindDelete, "", target, info.Size())
		return nil
	}

	w, err := walker.NewWalker(target, rel, e.excludes)
	if err != nil {
		e.fail(result, "delete", target, err)
		return nil
	}
	entries, err := w.Walk(ctx)
	if err != nil {
		if isCanceled(err) {
			return err
		}
		e.fail(result, "delete", target, err)
		return nil
	}

	var dirs []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir {
			dirs = append(dirs, entry.Path)
			continue
		}
		if err := os.Remove(entry.Path); err != nil {
			e.fail(result, "delete", entry.Path, err)
			continue
		}
		e.record(result, logger.KindDelete, "", entry.Path, entry.Size)
	}

	// entries are sorted by path, so walking backwards removes children
	// before their parents
	dirs = append([]string{target}, dirs...)
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := removeEmptyDir(dirs[i]); err != nil {
			e.fail(result, "delete", dirs[i], err)
		}
	}
	return nil
}

// removeEmptyDir removes dir unless something is still inside it.
func removeEmptyDir(dir string) error {
	rest, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		slog.Debug("keeping directory with excluded entries", "path", dir, "entries", len(rest))
		return nil
	}
	return os.Remove(dir)
}

// clearMismatch removes dst when it exists with a different type than src.
func (e *Executor) clearMismatch(ctx context.Context, result *Result, src os.FileInfo, dst, rel string) error {
	info, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() == src.IsDir() {
		return nil
	}
	slog.Debug("replacing replica entry of different type", "path", dst, "sourceIsDir", src.IsDir())
	return e.deleteEntry(ctx, result, dst, rel)
}

func (e *Executor) copyTree(ctx context.Context, result *Result, src, dst, relDir string, creation bool) error {
	rootInfo, err := os.Stat(src)
	if err != nil {
		e.fail(result, "copy", src, err)
		return nil
	}
	if err := os.MkdirAll(dst, rootInfo.Mode().Perm()|0700); err != nil {
		e.fail(result, "copy", dst, err)
		return nil
	}

	w, err := walker.NewWalker(src, relDir, e.excludes)
	if err != nil {
		e.fail(result, "copy", src, err)
		return nil
	}
	entries, err := w.Walk(ctx)
	if err != nil {
		if isCanceled(err) {
			return err
		}
		e.fail(result, "copy", src, err)
		return nil
	}

	failedDirs := map[string]bool{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, entry.Path)
		if err != nil {
			e.fail(result, "copy", entry.Path, err)
			continue
		}
		target := filepath.Join(dst, rel)
		if failedDirs[filepath.Dir(entry.Path)] {
			if entry.IsDir {
				failedDirs[entry.Path] = true
			}
			continue
		}

		if entry.IsDir {
			if err := os.MkdirAll(target, entry.Mode.Perm()|0700); err != nil {
				e.fail(result, "copy", target, err)
				failedDirs[entry.Path] = true
			}
			continue
		}

		info, err := os.Lstat(entry.Path)
		if err != nil {
			e.fail(result, "copy", entry.Path, err)
			continue
		}
		n, err := copyFile(entry.Path, target, info)
		if err != nil {
			e.fail(result, "copy", entry.Path, err)
			continue
		}
		e.record(result, kindFor(creation), entry.Path, target, n)
	}
	return nil
}

func (e *Executor) record(result *Result, kind logger.Kind, source, target string, size int64) {
	rec := logger.Record{Kind: kind, Path: source}
	switch kind {
	case logger.KindCreate:
		result.Stats.Created++
		result.Stats.BytesCopied += size
	case logger.KindCopy:
		result.Stats.Copied++
		result.Stats.BytesCopied += size
	case logger.KindDelete:
		rec.Path = target
		result.Stats.Deleted++
	}
	result.Records = append(result.Records, FileRecord{Record: rec, Source: source, Target: target, Size: size})

	if err := e.logger.Record(rec); err != nil {
		slog.Warn("failed to write action log", "record", rec.String(), "error", err)
	}
}

func (e *Executor) fail(result *Result, op, p string, err error) {
	err = fserr.Wrap(op, p, err)
	result.Failures = append(result.Failures, Failure{
		Op:   op,
		Path: p,
		Kind: fserr.KindOf(err),
		Err:  err,
	})
	e.logger.Error(op, p, err)
}

func kindFor(creation bool) logger.Kind {
	if creation {
		return logger.KindCreate
	}
	return logger.KindCopy
}

// copyFile writes src to a temporary file beside dst and renames it into
// place, so dst is either the old file or the complete new one. The
// modification time and permission bits of src are carried over.
func copyFile(src, dst string, info os.FileInfo) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".mirror-sync.tmp.*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, in)
	if err != nil {
		return 0, fmt.Errorf("copy content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return 0, fmt.Errorf("chtimes temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}

	success = true
	return n, nil
}

func isCanceled(err error) bool {
	return fserr.KindOf(err) == fserr.KindCanceled
}
