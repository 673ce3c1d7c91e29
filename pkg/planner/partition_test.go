package planner

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// checkPartition verifies that the sets of c are pairwise disjoint and
// together cover exactly names.
func checkPartition(c *Classification, names mapset.Set[string]) error {
	covered := mapset.NewThreadUnsafeSet[string]()
	for _, s := range []mapset.Set[string]{c.CommonDirs, c.SourceOnly, c.ReplicaOnly, c.Differing, c.Identical, c.Excluded} {
		if overlap := covered.Intersect(s); overlap.Cardinality() > 0 {
			return fmt.Errorf("names classified twice: %v", mapset.Sorted(overlap))
		}
		covered = covered.Union(s)
	}
	if !covered.Equal(names) {
		return fmt.Errorf("classification covers %v, want %v", mapset.Sorted(covered), mapset.Sorted(names))
	}
	return nil
}
