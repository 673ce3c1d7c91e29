package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// ParseLevel accepts debug, info, warn or error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// NewHandler builds the diagnostic handler: a tint handler on console and,
// when file is not nil, a plain text handler appending to file.
func NewHandler(console io.Writer, file io.Writer, level slog.Level) slog.Handler {
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(console),
	})
	if file == nil {
		return consoleHandler
	}
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})
	return NewMultiHandler(consoleHandler, fileHandler)
}

// Setup installs the handler as the slog default.
func Setup(console io.Writer, file io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(NewHandler(console, file, level))
	slog.SetDefault(logger)
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Summary is what a run reports on the console once it ends.
type Summary struct {
	Created  int
	Copied   int
	Deleted  int
	Failed   int
	Bytes    int64
	Duration time.Duration
	Canceled bool
}

// Printer writes the human facing run banner and summary.
type Printer struct {
	out   io.Writer
	quiet bool
}

func NewPrinter(out io.Writer, quiet bool) *Printer {
	return &Printer{out: out, quiet: quiet}
}

// Banner announces the start of a run.
func (p *Printer) Banner(source, replica string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "Syncing %s + %s\n", source, replica)
}

// PrintSummary prints the file counts after every run. In quiet mode the
// detail lines are only printed when something failed.
func (p *Printer) PrintSummary(s Summary) {
	fmt.Fprintf(p.out, "Files created: %d Files copied: %d Files deleted: %d\n", s.Created, s.Copied, s.Deleted)
	if p.quiet && s.Failed == 0 && !s.Canceled {
		return
	}

	fmt.Fprintf(p.out, "Transferred: %s in %s\n", humanize.Bytes(uint64(s.Bytes)), s.Duration.Round(time.Millisecond))
	if s.Failed > 0 {
		fmt.Fprintf(p.out, "Errors: %d\n", s.Failed)
	}
	if s.Canceled {
		fmt.Fprintln(p.out, "Run canceled before completion")
	}
}
