// Package lru implements a block store that acts as a least-recently-used cache for a nested block store.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = &Store{}

// Store implements a memory-based least-recently-used cache for a block store.
// Writes pass through to the underlying block store.
type Store struct {
	c *lru.Cache // cid.Cid->[]byte
	s dagdelta.Store
}

// New produces a new Store backed by `s` and caching up to `size` blocks.
func New(s dagdelta.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// FetchBlock gets the bytes of the block with the given CID.
func (s *Store) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	if got, ok := s.c.Get(c); ok {
		return got.([]byte), nil
	}
	data, err := s.s.FetchBlock(ctx, c)
	if err != nil {
		return nil, err
	}
	s.c.Add(c, data)
	return data, nil
}

// PutBlock adds a block to the store if it wasn't already present.
func (s *Store) PutBlock(ctx context.Context, b dagdelta.Block) (bool, error) {
	added, err := s.s.PutBlock(ctx, b)
	if err != nil {
		return added, err
	}
	s.c.Add(b.CID, b.Data)
	return added, nil
}

// ListCIDs produces all CIDs in the store, in ascending order.
func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	return s.s.ListCIDs(ctx, start, f)
}

// Len is the number of cached blocks.
func (s *Store) Len() int {
	return s.c.Len()
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
		size, ok := store.IntParam(conf, "size")
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nestedStore, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nestedStore, size)
	})
}
