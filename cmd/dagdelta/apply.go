package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bobg/dagdelta/filetree"
)

func (c maincmd) apply(ctx context.Context, out string, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: apply [-o OUT] OLD ARCHIVE")
	}

	source, err := c.buildTree(ctx, args[0])
	if err != nil {
		return err
	}
	a, err := readArchive(args[1])
	if err != nil {
		return err
	}
	if a.Base.Defined() && !a.Base.Equals(source.Root()) {
		c.logger.Warn("archive was computed against a different source",
			zap.Stringer("base", a.Base),
			zap.Stringer("source", source.Root()),
		)
	}

	buf, err := filetree.ApplyArchive(ctx, source, a)
	if err != nil {
		return errors.Wrap(err, "applying delta")
	}
	if err := writeOutput(out, buf); err != nil {
		return err
	}

	c.logger.Info("applied delta",
		zap.Stringer("source", source.Root()),
		zap.Stringer("dest", a.Root),
		zap.Int("archive_blocks", len(a.Blocks)),
		zap.Int("bytes", len(buf)),
	)
	return nil
}
