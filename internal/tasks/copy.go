package tasks

import (
	"context"

	"github.com/conneroisu/sitesmith/internal/build"
	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/pipeline"
)

// Copy copies the files of one asset category verbatim.
func Copy(name string, entry config.Entry) *pipeline.Task {
	return pipeline.New(name, "copy "+string(entry.Category)+" to "+entry.Dest, func(ctx context.Context) error {
		_, err := build.CopyGlob(ctx, entry.Src, entry.Dest)
		return err
	}, pipeline.Output{Dir: entry.Dest, Recursive: true})
}
