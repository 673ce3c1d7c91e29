package fserr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	_, statErr := os.Stat(filepath.Join(t.TempDir(), "missing"))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "not exist", err: fs.ErrNotExist, want: KindNotFound},
		{name: "stat of missing path", err: statErr, want: KindNotFound},
		{name: "permission", err: &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, want: KindPermissionDenied},
		{name: "canceled", err: fmt.Errorf("walk: %w", context.Canceled), want: KindCanceled},
		{name: "other", err: errors.New("disk full"), want: KindIO},
		{name: "already classified", err: &Error{Kind: KindPermissionDenied, Err: errors.New("x")}, want: KindPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("copy", "/a", nil))

	err := Wrap("copy", "/src/a.txt", fs.ErrNotExist)
	var fe *Error
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, KindNotFound, fe.Kind)
	assert.Equal(t, "/src/a.txt", PathOf(err))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Equal(t, "copy /src/a.txt: NotFound: file does not exist", err.Error())

	// wrapping twice keeps the innermost operation
	again := Wrap("delete", "/other", err)
	assert.Same(t, err, again)
}

func TestPathOf(t *testing.T) {
	assert.Equal(t, "/x", PathOf(&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}))
	assert.Equal(t, "", PathOf(errors.New("plain")))
}
