// Package scheduler drives reconciliation runs at a fixed interval until its
// context is cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuya-takeyama/mirror-sync/internal/logging"
	"github.com/yuya-takeyama/mirror-sync/pkg/reconciler"
	"github.com/yuya-takeyama/mirror-sync/pkg/report"
)

// ErrRunFailed is returned by a single-shot schedule whose run aborted or
// left entries unreconciled.
var ErrRunFailed = errors.New("run did not complete cleanly")

const publishTimeout = time.Minute

type Runner interface {
	Run(ctx context.Context, source, replica string) (*reconciler.Report, error)
}

type Options struct {
	Source   string
	Replica  string
	Interval time.Duration
	Once     bool
}

type Scheduler struct {
	runner  Runner
	printer *logging.Printer
	sinks   []report.Sink
	opts    Options
}

func New(runner Runner, printer *logging.Printer, opts Options, sinks ...report.Sink) *Scheduler {
	return &Scheduler{
		runner:  runner,
		printer: printer,
		sinks:   sinks,
		opts:    opts,
	}
}

// Start runs immediately and then again Interval after each run finishes.
// It returns nil once ctx is cancelled. With Once set it returns after the
// first run, with ErrRunFailed if that run was not clean.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.Debug("scheduler start", "interval", s.opts.Interval, "once", s.opts.Once)

	clean := s.runOnce(ctx)
	if s.opts.Once {
		if !clean {
			return ErrRunFailed
		}
		return nil
	}

	// a timer rather than a ticker so a run longer than the interval does
	// not queue up the next one
	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("scheduler stop", "reason", ctx.Err())
			return nil
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(s.opts.Interval)
		}
	}
}

// runOnce performs a single run and reports whether it finished without
// failures.
func (s *Scheduler) runOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	s.printer.Banner(s.opts.Source, s.opts.Replica)
	rep, err := s.runner.Run(ctx, s.opts.Source, s.opts.Replica)
	if rep == nil {
		rep = &reconciler.Report{Source: s.opts.Source, Replica: s.opts.Replica, StartedAt: time.Now()}
	}

	fatal := err != nil && !rep.Canceled
	if fatal {
		slog.Error("run failed, retrying at next interval", "source", s.opts.Source, "replica", s.opts.Replica, "error", err)
	} else {
		s.printer.PrintSummary(logging.Summary{
			Created:  rep.Stats.Created,
			Copied:   rep.Stats.Copied,
			Deleted:  rep.Stats.Deleted,
			Failed:   len(rep.Failures),
			Bytes:    rep.Stats.BytesCopied,
			Duration: rep.Duration,
			Canceled: rep.Canceled,
		})
	}

	s.publish(ctx, rep, err)
	return err == nil && !rep.Failed()
}

func (s *Scheduler) publish(ctx context.Context, rep *reconciler.Report, runErr error) {
	if len(s.sinks) == 0 {
		return
	}
	rr := report.FromReport(rep)
	if runErr != nil && !rep.Canceled {
		rr.FatalError = runErr.Error()
	}

	// sinks still get the report of a run cut short by cancellation
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, rr); err != nil {
			slog.Warn("failed to publish run report", "sink", fmt.Sprintf("%T", sink), "error", err)
		}
	}
}
