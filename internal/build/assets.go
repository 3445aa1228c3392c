package build

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
)

// Concat joins files in the given order into out, one newline between
// files. Contents are not transformed.
func Concat(ctx context.Context, files []string, out string) error {
	var buf bytes.Buffer
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return siteerrors.NewIOError("CONCAT_READ", "cannot read file to concatenate", err).
				WithLocation(f, 0, 0)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}
	return WriteFile(out, buf.Bytes())
}

// Match expands a glob. A malformed pattern matches nothing.
func Match(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if errors.Is(err, doublestar.ErrBadPattern) {
		return nil, nil
	}
	if err != nil {
		return nil, siteerrors.NewIOError("GLOB", "cannot expand pattern", err).WithLocation(pattern, 0, 0)
	}
	return matches, nil
}

// CopyGlob copies every file matched by pattern into dest, keeping each
// file's path relative to the static part of the pattern. It returns the
// written paths.
func CopyGlob(ctx context.Context, pattern, dest string) ([]string, error) {
	matches, err := Match(pattern)
	if err != nil {
		return nil, err
	}

	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	base = filepath.FromSlash(base)

	written := make([]string, 0, len(matches))
	for _, src := range matches {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		rel, err := filepath.Rel(base, src)
		if err != nil {
			rel = filepath.Base(src)
		}
		target := filepath.Join(dest, rel)
		if err := copyFile(src, target); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	return written, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return siteerrors.NewIOError("COPY_READ", "cannot open source file", err).WithLocation(src, 0, 0)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return siteerrors.NewIOError("MKDIR", "cannot create output directory", err).WithLocation(dst, 0, 0)
	}
	out, err := os.Create(dst)
	if err != nil {
		return siteerrors.NewIOError("COPY_WRITE", "cannot create output file", err).WithLocation(dst, 0, 0)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return siteerrors.NewIOError("COPY_WRITE", "cannot copy file", err).WithLocation(dst, 0, 0)
	}
	if err := out.Close(); err != nil {
		return siteerrors.NewIOError("COPY_WRITE", "cannot close output file", err).WithLocation(dst, 0, 0)
	}
	return nil
}
