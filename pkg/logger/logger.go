package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/yuya-takeyama/mirror-sync/pkg/fserr"
)

type Kind string

const (
	KindCreate Kind = "create"
	KindCopy   Kind = "copy"
	KindDelete Kind = "delete"
)

// Verb is the past tense used in log lines.
func (k Kind) Verb() string {
	switch k {
	case KindCreate:
		return "Created"
	case KindCopy:
		return "Copied"
	case KindDelete:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// Record is one file touched by a run.
type Record struct {
	Kind Kind
	Path string
}

func (r Record) String() string {
	return fmt.Sprintf("%s file: %s", r.Kind.Verb(), r.Path)
}

type Logger interface {
	Record(rec Record) error
	Error(op, path string, err error)
}

// SyncLogger appends every record to a log file and echoes it to the console.
// Each line is a single write so concurrent readers never see half a record.
type SyncLogger struct {
	mu      sync.Mutex
	file    io.WriteCloser
	console io.Writer
	IsQuiet bool
}

// Open opens path in append mode, creating it when missing.
func Open(path string, console io.Writer, quiet bool) (*SyncLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, console, quiet), nil
}

func New(file io.WriteCloser, console io.Writer, quiet bool) *SyncLogger {
	if console == nil {
		console = io.Discard
	}
	return &SyncLogger{file: file, console: console, IsQuiet: quiet}
}

func (l *SyncLogger) Record(rec Record) error {
	return l.writeLine(rec.String(), !l.IsQuiet)
}

// Error is always echoed, even in quiet mode. path may name a file or a
// directory, so the line does not say which.
func (l *SyncLogger) Error(op, path string, err error) {
	line := fmt.Sprintf("Failed to %s: %s (%s): %v", op, path, fserr.KindOf(err), err)
	_ = l.writeLine(line, true)
}

func (l *SyncLogger) writeLine(line string, echo bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := io.WriteString(l.file, line+"\n"); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}
	if echo {
		fmt.Fprintln(l.console, line)
	}
	return nil
}

// Write appends raw diagnostic output to the log file without echoing it.
func (l *SyncLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Write(p)
}

func (l *SyncLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

type NullLogger struct{}

func (l *NullLogger) Record(rec Record) error { return nil }

func (l *NullLogger) Error(op, path string, err error) {}
