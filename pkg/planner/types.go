package planner

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

type Planner interface {
	Compare(ctx context.Context, sourceDir, replicaDir, relPath string) (*Classification, error)
}

// CompareMode selects how two same-named files are tested for equality.
type CompareMode string

const (
	// CompareContent rejects on size, otherwise hashes both files.
	CompareContent CompareMode = "content"
	// CompareQuick trusts equal size and modification time, and hashes
	// only when the metadata disagrees.
	CompareQuick CompareMode = "quick"
)

func (m CompareMode) Valid() bool {
	return m == CompareContent || m == CompareQuick
}

type EntryInfo struct {
	Name    string
	IsDir   bool
	Regular bool
	Size    int64
	ModTime time.Time
}

// DirectoryView is a snapshot of the immediate children of one directory.
type DirectoryView struct {
	Path    string
	Entries map[string]EntryInfo
}

func (v DirectoryView) Names() mapset.Set[string] {
	names := mapset.NewThreadUnsafeSetWithSize[string](len(v.Entries))
	for name := range v.Entries {
		names.Add(name)
	}
	return names
}

type Options struct {
	Mode     CompareMode
	Excludes []string
}

// Classification is the result of comparing one source directory with the
// replica directory at the same relative path. Every name of either side
// lands in exactly one set.
type Classification struct {
	SourceDir  string
	ReplicaDir string
	RelPath    string

	CommonDirs  mapset.Set[string]
	SourceOnly  mapset.Set[string]
	ReplicaOnly mapset.Set[string]
	Differing   mapset.Set[string]
	Identical   mapset.Set[string]
	Excluded    mapset.Set[string]
}

func newClassification(sourceDir, replicaDir, relPath string) *Classification {
	return &Classification{
		SourceDir:   sourceDir,
		ReplicaDir:  replicaDir,
		RelPath:     relPath,
		CommonDirs:  mapset.NewThreadUnsafeSet[string](),
		SourceOnly:  mapset.NewThreadUnsafeSet[string](),
		ReplicaOnly: mapset.NewThreadUnsafeSet[string](),
		Differing:   mapset.NewThreadUnsafeSet[string](),
		Identical:   mapset.NewThreadUnsafeSet[string](),
		Excluded:    mapset.NewThreadUnsafeSet[string](),
	}
}

// HasChanges reports whether this level needs any copy or delete.
func (c *Classification) HasChanges() bool {
	return c.SourceOnly.Cardinality() > 0 || c.ReplicaOnly.Cardinality() > 0 || c.Differing.Cardinality() > 0
}

// Phase1Result holds the metadata-only classification. Files whose equality
// cannot be decided from metadata are left in NeedContent.
type Phase1Result struct {
	*Classification
	NeedContent []string
}
