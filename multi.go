package dagdelta

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"
)

// MultiErr is a type of error returned by PutBlocks.
// It maps individual CIDs to errors encountered trying to store them.
type MultiErr map[cid.Cid]error

// Error implements the error interface.
func (e MultiErr) Error() string {
	var strs []string
	for c, err := range e {
		strs = append(strs, fmt.Sprintf("%s: %s", c, err))
	}
	return "error(s): " + strings.Join(strs, "; ")
}

// PutBlocks stores multiple blocks concurrently,
// with at most `limit` calls to PutBlock in flight
// (no limit if limit <= 0).
// It returns the number of blocks that were new to s.
// The returned error may be a MultiErr,
// mapping CIDs to errors encountered writing those specific blocks.
func PutBlocks(ctx context.Context, s Store, blocks []Block, limit int) (int, error) {
	var (
		mu     sync.Mutex
		added  int
		errmap MultiErr
		g      errgroup.Group
	)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, b := range blocks {
		b := b
		g.Go(func() error {
			ok, err := s.PutBlock(ctx, b)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if errmap == nil {
					errmap = make(MultiErr)
				}
				errmap[b.CID] = err
				return nil
			}
			if ok {
				added++
			}
			return nil
		})
	}
	_ = g.Wait()

	if errmap != nil {
		return added, errmap
	}
	return added, nil
}
