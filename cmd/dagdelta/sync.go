package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

func (c maincmd) sync(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: sync STORECONFIG...")
	}
	if err := c.needStore(); err != nil {
		return err
	}

	stores := []dagdelta.Store{c.s}
	for _, arg := range args {
		s, err := storeFromFile(ctx, arg)
		if err != nil {
			return err
		}
		stores = append(stores, s)
	}

	written, err := store.Sync(ctx, stores)
	if err != nil {
		return errors.Wrap(err, "syncing stores")
	}
	c.logger.Info("synced stores", zap.Int("stores", len(stores)), zap.Int("written", written))
	return nil
}
