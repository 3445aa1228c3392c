package tasks

import (
	"context"
	"os"

	"github.com/conneroisu/sitesmith/internal/config"
	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/pipeline"
)

// Clean removes the output root. Removing a missing root succeeds.
func Clean(paths config.PathTable) *pipeline.Task {
	root := paths.Root()
	return pipeline.New(NameClean, "delete the output root", func(ctx context.Context) error {
		if err := os.RemoveAll(root); err != nil {
			return siteerrors.NewIOError("CLEAN", "cannot remove output root", err).WithLocation(root, 0, 0)
		}
		return nil
	}, pipeline.Output{Dir: root, Recursive: true})
}
