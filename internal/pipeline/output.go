package pipeline

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Output declares where a task writes. Files lists the file names (or
// path.Match patterns) written directly in Dir; an empty list means any
// file. Recursive means the task also writes below Dir.
type Output struct {
	Dir       string
	Files     []string
	Recursive bool
}

func (o Output) String() string {
	switch {
	case o.Recursive:
		return filepath.ToSlash(filepath.Join(o.Dir, "**"))
	case len(o.Files) == 0:
		return filepath.ToSlash(filepath.Join(o.Dir, "*"))
	default:
		return fmt.Sprintf("%s/{%s}", filepath.ToSlash(filepath.Clean(o.Dir)), strings.Join(o.Files, ","))
	}
}

// Overlaps reports whether two outputs may write the same path.
func (o Output) Overlaps(p Output) bool {
	a, b := filepath.Clean(o.Dir), filepath.Clean(p.Dir)

	if a == b {
		if len(o.Files) == 0 || len(p.Files) == 0 {
			return true
		}
		return filesOverlap(o.Files, p.Files)
	}

	if isAncestor(a, b) {
		return o.Recursive
	}
	if isAncestor(b, a) {
		return p.Recursive
	}
	return false
}

func firstOverlap(as, bs []Output) (Output, Output, bool) {
	for _, a := range as {
		for _, b := range bs {
			if a.Overlaps(b) {
				return a, b, true
			}
		}
	}
	return Output{}, Output{}, false
}

func filesOverlap(as, bs []string) bool {
	for _, a := range as {
		for _, b := range bs {
			if a == b || matches(a, b) || matches(b, a) {
				return true
			}
		}
	}
	return false
}

func matches(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

func isAncestor(dir, sub string) bool {
	rel, err := filepath.Rel(dir, sub)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
