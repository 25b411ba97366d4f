package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bobg/dagdelta/filetree"
)

func (c maincmd) delta(ctx context.Context, out string, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: delta [-o OUT] OLD NEW")
	}

	source, err := c.buildTree(ctx, args[0], filetree.WithDropBytes())
	if err != nil {
		return err
	}
	dest, err := c.buildTree(ctx, args[1])
	if err != nil {
		return err
	}

	d, err := source.Delta(ctx, dest)
	if err != nil {
		return errors.Wrap(err, "computing delta")
	}
	buf, err := d.Export()
	if err != nil {
		return errors.Wrap(err, "exporting delta")
	}
	if err := writeArchive(out, buf); err != nil {
		return err
	}

	c.logger.Info("computed delta",
		zap.Stringer("source", source.Root()),
		zap.Stringer("dest", dest.Root()),
		zap.Int("blocks", d.Len()),
		zap.Int("block_bytes", d.Size()),
		zap.Int("archive_bytes", len(buf)),
	)
	return nil
}
