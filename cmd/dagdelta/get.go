package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/dagdelta/filetree"
)

func (c maincmd) get(ctx context.Context, out string, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get [-o OUT] ROOT")
	}
	if err := c.needStore(); err != nil {
		return err
	}

	root, err := parseCID(args[0])
	if err != nil {
		return err
	}
	t, err := filetree.Load(ctx, c.s, root, filetree.WithDropBytes())
	if err != nil {
		return errors.Wrapf(err, "loading tree %s", root)
	}

	if out == "" || out == "-" {
		return t.WriteTo(ctx, os.Stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "creating %s", out)
	}
	if err := t.WriteTo(ctx, f); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", out)
	}
	return errors.Wrapf(f.Close(), "closing %s", out)
}
