// Package reconciler converges a replica directory tree onto a source tree.
//
// A run visits every directory pair reachable through directories present
// on both sides, depth first, using an explicit work list. Each pair is
// classified by a planner.Planner on the way down; its differences are
// applied once every common subdirectory below it is done: source-only
// entries are created, replica-only entries deleted and changed entries
// overwritten. Failures on single entries are collected in the Report; only
// an unreadable root aborts the run.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/yuya-takeyama/mirror-sync/pkg/executor"
	"github.com/yuya-takeyama/mirror-sync/pkg/fserr"
	"github.com/yuya-takeyama/mirror-sync/pkg/logger"
	"github.com/yuya-takeyama/mirror-sync/pkg/planner"
)

// Applier performs the filesystem side of a run.
type Applier interface {
	Copy(ctx context.Context, names []string, sourceDir, replicaDir, relDir string, creation bool) (executor.Result, error)
	Delete(ctx context.Context, names []string, replicaDir, relDir string) (executor.Result, error)
}

// Report is the outcome of one run. Stats always equal the number of
// records of each kind.
type Report struct {
	Source      string
	Replica     string
	StartedAt   time.Time
	Duration    time.Duration
	DirsVisited int
	Canceled    bool

	executor.Result
}

// Failed reports whether any entry could not be reconciled.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

type Reconciler struct {
	planner planner.Planner
	applier Applier
	logger  logger.Logger
}

func New(p planner.Planner, a Applier, l logger.Logger) *Reconciler {
	if l == nil {
		l = &logger.NullLogger{}
	}
	return &Reconciler{
		planner: p,
		applier: a,
		logger:  l,
	}
}

// dirPair is one frame of the work list. A frame carrying a classification
// is the post-visit of a pair whose subdirectories have all been handled.
type dirPair struct {
	source  string
	replica string
	rel     string

	classified *planner.Classification
}

// Run reconciles replica onto source once. The returned error is non-nil
// when the run was cut short: either root could not be listed, or ctx was
// cancelled. The report is valid in every case.
func (r *Reconciler) Run(ctx context.Context, source, replica string) (*Report, error) {
	report := &Report{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	var err error
	if report.Source, err = filepath.Abs(source); err != nil {
		return report, fserr.Wrap("resolve", source, err)
	}
	if report.Replica, err = filepath.Abs(replica); err != nil {
		return report, fserr.Wrap("resolve", replica, err)
	}

	stack := []dirPair{{source: report.Source, replica: report.Replica}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			return report, err
		}

		pair := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if pair.classified != nil {
			if err := r.apply(ctx, report, pair.classified); err != nil {
				report.Canceled = true
				return report, err
			}
			continue
		}

		c, err := r.planner.Compare(ctx, pair.source, pair.replica, pair.rel)
		if err != nil {
			if fserr.KindOf(err) == fserr.KindCanceled {
				report.Canceled = true
				return report, err
			}
			if pair.rel == "" {
				return report, fmt.Errorf("failed to list root: %w", err)
			}
			r.fail(report, "list", pair.source, err)
			continue
		}
		report.DirsVisited++

		// applied after everything pushed below it
		if c.HasChanges() {
			stack = append(stack, dirPair{classified: c})
		}

		// pushed in reverse so that siblings are visited in name order
		dirs := mapset.Sorted(c.CommonDirs)
		for i := len(dirs) - 1; i >= 0; i-- {
			name := dirs[i]
			stack = append(stack, dirPair{
				source:  filepath.Join(pair.source, name),
				replica: filepath.Join(pair.replica, name),
				rel:     path.Join(pair.rel, name),
			})
		}
	}

	return report, nil
}

func (r *Reconciler) apply(ctx context.Context, report *Report, c *planner.Classification) error {
	slog.Debug("reconcile directory",
		"path", c.RelPath,
		"sourceOnly", c.SourceOnly.Cardinality(),
		"replicaOnly", c.ReplicaOnly.Cardinality(),
		"differing", c.Differing.Cardinality(),
	)

	steps := []func() (executor.Result, error){
		func() (executor.Result, error) {
			return r.applier.Copy(ctx, mapset.Sorted(c.SourceOnly), c.SourceDir, c.ReplicaDir, c.RelPath, true)
		},
		func() (executor.Result, error) {
			return r.applier.Delete(ctx, mapset.Sorted(c.ReplicaOnly), c.ReplicaDir, c.RelPath)
		},
		func() (executor.Result, error) {
			return r.applier.Copy(ctx, mapset.Sorted(c.Differing), c.SourceDir, c.ReplicaDir, c.RelPath, false)
		},
	}
	for _, step := range steps {
		result, err := step()
		report.Merge(result)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) fail(report *Report, op, p string, err error) {
	if fp := fserr.PathOf(err); fp != "" {
		p = fp
	}
	err = fserr.Wrap(op, p, err)
	report.Failures = append(report.Failures, executor.Failure{
		Op:   op,
		Path: p,
		Kind: fserr.KindOf(err),
		Err:  err,
	})
	r.logger.Error(op, p, err)
}
