package main

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta/dagpb"
	"github.com/bobg/dagdelta/inline"
)

func (c maincmd) stat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: stat FILE")
	}

	t, err := c.buildTree(ctx, args[0])
	if err != nil {
		return err
	}

	var nodes, depth int
	err = t.Walk(ctx, func(_ cid.Cid, _ uint64, d int, n *dagpb.Node) error {
		if n != nil {
			nodes++
		}
		if d > depth {
			depth = d
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walking tree")
	}

	fmt.Printf("root:   %s\n", t.Root())
	fmt.Printf("size:   %d\n", t.Size())
	fmt.Printf("blocks: %d distinct (%d chunks)\n", t.Len(), len(t.Chunks()))
	fmt.Printf("nodes:  %d visited, depth %d\n", nodes, depth)
	fmt.Printf("inline: %s\n", inline.Ref{File: t.Root(), Options: c.sizes})
	return nil
}
