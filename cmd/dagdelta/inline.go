package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/dagdelta/filetree"
	"github.com/bobg/dagdelta/inline"
)

func (c maincmd) inline(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: inline FILE")
	}

	t, err := c.buildTree(ctx, args[0], filetree.WithDropBytes())
	if err != nil {
		return err
	}
	buf, err := inline.Encode(inline.Ref{File: t.Root(), Options: c.sizes})
	if err != nil {
		return errors.Wrap(err, "encoding reference")
	}
	s, err := inline.Inline(buf)
	if err != nil {
		return errors.Wrap(err, "producing inline form")
	}
	fmt.Println(s)
	return nil
}

func (c maincmd) decodeInline(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: decode-inline REF")
	}

	r, err := inline.DecodeInline(args[0])
	if err != nil {
		return errors.Wrap(err, "decoding reference")
	}
	fmt.Printf("root: %s\n", r.File)
	fmt.Printf("min:  %d\n", r.Options.Min)
	fmt.Printf("max:  %d\n", r.Options.Max)
	fmt.Printf("avg:  %d\n", r.Options.Avg)
	return nil
}
