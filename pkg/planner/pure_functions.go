package planner

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
)

// Phase1Classify partitions the names of source and replica using directory
// listings only. relPath is the slash separated path of both directories
// relative to their roots and is what exclude patterns are matched against.
func Phase1Classify(source, replica DirectoryView, relPath string, opts Options) (Phase1Result, error) {
	result := Phase1Result{Classification: newClassification(source.Path, replica.Path, relPath)}

	all := source.Names().Union(replica.Names())
	for _, name := range mapset.Sorted(all) {
		excluded, err := IsExcluded(path.Join(relPath, name), opts.Excludes)
		if err != nil {
			return Phase1Result{}, fmt.Errorf("failed to check exclude pattern for %s: %w", name, err)
		}

		srcEntry, inSource := source.Entries[name]
		dstEntry, inReplica := replica.Entries[name]

		switch {
		case excluded:
			result.Excluded.Add(name)
		case inSource && !supported(srcEntry), inReplica && !supported(dstEntry):
			// symbolic links and device files are left alone on both sides
			result.Excluded.Add(name)
		case inSource && !inReplica:
			result.SourceOnly.Add(name)
		case !inSource && inReplica:
			result.ReplicaOnly.Add(name)
		case srcEntry.IsDir && dstEntry.IsDir:
			result.CommonDirs.Add(name)
		case srcEntry.IsDir != dstEntry.IsDir:
			result.Differing.Add(name)
		case srcEntry.Size != dstEntry.Size:
			result.Differing.Add(name)
		case opts.Mode == CompareQuick && srcEntry.ModTime.Equal(dstEntry.ModTime):
			result.Identical.Add(name)
		default:
			result.NeedContent = append(result.NeedContent, name)
		}
	}

	return result, nil
}

// Phase2Resolve moves every NeedContent name into Identical or Differing.
// same is consulted once per name; a failed comparison counts as differing
// because the files could not be confirmed identical.
func Phase2Resolve(phase1 Phase1Result, same func(name string) (bool, error)) *Classification {
	c := phase1.Classification
	for _, name := range phase1.NeedContent {
		ok, err := same(name)
		if err == nil && ok {
			c.Identical.Add(name)
		} else {
			c.Differing.Add(name)
		}
	}
	return c
}

func supported(e EntryInfo) bool {
	return e.IsDir || e.Regular
}

// IsExcluded matches path against doublestar patterns. A trailing slash on a
// pattern is ignored; excluded directories are never descended into, so
// their contents are excluded with them.
func IsExcluded(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(pattern, "/")
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
