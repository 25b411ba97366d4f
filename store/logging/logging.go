// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = &Store{}

type Store struct {
	s      dagdelta.Store
	logger *zap.Logger
}

// New produces a Store delegating to s and logging to logger.
// If logger is nil, the global zap logger is used.
func New(s dagdelta.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.L()
	}
	return &Store{s: s, logger: logger}
}

func (s *Store) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	data, err := s.s.FetchBlock(ctx, c)
	if err != nil {
		s.logger.Error("FetchBlock", zap.Stringer("cid", c), zap.Error(err))
	} else {
		s.logger.Debug("FetchBlock", zap.Stringer("cid", c), zap.Int("size", len(data)))
	}
	return data, err
}

func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	s.logger.Debug("ListCIDs", zap.Stringer("start", start))
	return s.s.ListCIDs(ctx, start, func(c cid.Cid) error {
		err := f(c)
		if err != nil {
			s.logger.Error("in ListCIDs", zap.Stringer("cid", c), zap.Error(err))
		} else {
			s.logger.Debug("ListCIDs", zap.Stringer("cid", c))
		}
		return err
	})
}

func (s *Store) PutBlock(ctx context.Context, b dagdelta.Block) (bool, error) {
	added, err := s.s.PutBlock(ctx, b)
	if err != nil {
		s.logger.Error("PutBlock", zap.Stringer("cid", b.CID), zap.Error(err))
	} else {
		s.logger.Debug("PutBlock", zap.Stringer("cid", b.CID), zap.Int("size", len(b.Data)), zap.Bool("added", added))
	}
	return added, err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
		nestedStore, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nestedStore, nil), nil
	})
}
