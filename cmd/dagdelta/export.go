package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (c maincmd) export(ctx context.Context, out string, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: export [-o OUT] FILE")
	}

	t, err := c.buildTree(ctx, args[0])
	if err != nil {
		return err
	}
	buf, err := t.Export(ctx)
	if err != nil {
		return errors.Wrap(err, "exporting tree")
	}
	if err := writeArchive(out, buf); err != nil {
		return err
	}

	c.logger.Info("exported tree",
		zap.Stringer("root", t.Root()),
		zap.Int("blocks", t.Len()),
		zap.Int("archive_bytes", len(buf)),
	)
	return nil
}
