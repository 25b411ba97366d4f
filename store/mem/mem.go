// Package mem implements an in-memory block store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = &Store{}

// Store is a memory-based implementation of a block store.
type Store struct {
	mu     sync.Mutex
	blocks map[cid.Cid][]byte
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blocks: make(map[cid.Cid][]byte),
	}
}

// FetchBlock gets the bytes of the block with the given CID.
func (s *Store) FetchBlock(_ context.Context, c cid.Cid) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.blocks[c]; ok {
		return data, nil
	}
	return nil, dagdelta.ErrNotFound
}

// PutBlock adds a block to the store if it wasn't already present.
func (s *Store) PutBlock(_ context.Context, b dagdelta.Block) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[b.CID]; ok {
		return false, nil
	}
	s.blocks[b.CID] = b.Data
	return true, nil
}

// Len is the number of blocks in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

// ListCIDs produces all CIDs in the store, in ascending order.
func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	s.mu.Lock()
	cids := make([]cid.Cid, 0, len(s.blocks))
	for c := range s.blocks {
		cids = append(cids, c)
	}
	s.mu.Unlock()

	dagdelta.SortCIDs(cids)
	index := sort.Search(len(cids), func(n int) bool {
		return dagdelta.Less(start, cids[n])
	})

	for i := index; i < len(cids); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(cids[i]); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (dagdelta.Store, error) {
		return New(), nil
	})
}
