package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bobg/dagdelta"
)

func (c maincmd) ingest(ctx context.Context, limit int, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ingest [-j N] FILE")
	}
	if err := c.needStore(); err != nil {
		return err
	}

	t, err := c.buildTree(ctx, args[0])
	if err != nil {
		return err
	}
	blocks, err := t.Blocks(ctx)
	if err != nil {
		return errors.Wrap(err, "collecting blocks")
	}
	added, err := dagdelta.PutBlocks(ctx, c.s, blocks, limit)
	if err != nil {
		return errors.Wrap(err, "storing blocks")
	}

	c.logger.Info("ingested file",
		zap.String("file", args[0]),
		zap.Stringer("root", t.Root()),
		zap.Int("blocks", len(blocks)),
		zap.Int("added", added),
	)
	fmt.Println(t.Root())
	return nil
}
