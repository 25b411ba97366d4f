package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta/dagpb"
	"github.com/bobg/dagdelta/filetree"
)

func (c maincmd) tree(ctx context.Context, rootstr string, args []string) error {
	var (
		t   *filetree.Tree
		err error
	)
	switch {
	case rootstr != "" && len(args) == 0:
		if err := c.needStore(); err != nil {
			return err
		}
		root, err := parseCID(rootstr)
		if err != nil {
			return err
		}
		t, err = filetree.Load(ctx, c.s, root, filetree.WithDropBytes())
		if err != nil {
			return errors.Wrapf(err, "loading tree %s", root)
		}

	case rootstr == "" && len(args) == 1:
		t, err = c.buildTree(ctx, args[0], filetree.WithDropBytes())
		if err != nil {
			return err
		}

	default:
		return errors.New("usage: tree FILE | tree -root CID")
	}

	return t.Walk(ctx, func(id cid.Cid, size uint64, depth int, n *dagpb.Node) error {
		indent := strings.Repeat("  ", depth)
		if n == nil {
			fmt.Printf("%schunk %s size %d\n", indent, id, size)
			return nil
		}
		fmt.Printf("%snode %s size %d links %d\n", indent, id, size, len(n.Links))
		return nil
	})
}
