package store

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/dagdelta"
)

// Merge runs ListCIDs concurrently on all the given stores
// and calls f once for each distinct CID in the union of their contents,
// in ascending order,
// together with the indexes of the stores that hold it.
//
// The listings are still in progress while f runs,
// so f must not call into a store that serializes access
// (such as a sqlite3 store with a single connection).
func Merge(ctx context.Context, stores []dagdelta.Store, start cid.Cid, f func(c cid.Cid, have []int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	chans := make([]chan cid.Cid, len(stores))
	for i, s := range stores {
		i, s := i, s
		chans[i] = make(chan cid.Cid, 1)
		g.Go(func() error {
			defer close(chans[i])
			return s.ListCIDs(gctx, start, func(c cid.Cid) error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case chans[i] <- c:
					return nil
				}
			})
		})
	}

	err := merge(gctx, chans, f)
	cancel()
	werr := g.Wait()
	if err != nil && (werr == nil || !errors.Is(err, context.Canceled)) {
		return err
	}
	return werr
}

func merge(ctx context.Context, chans []chan cid.Cid, f func(cid.Cid, []int) error) error {
	heads := make([]cid.Cid, len(chans)) // cid.Undef when exhausted

	recv := func(i int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-chans[i]:
			if !ok {
				c = cid.Undef
			}
			heads[i] = c
			return nil
		}
	}

	for i := range chans {
		if err := recv(i); err != nil {
			return err
		}
	}

	for {
		var (
			min  cid.Cid
			have []int
		)
		for i, c := range heads {
			switch {
			case !c.Defined():
			case !min.Defined() || dagdelta.Less(c, min):
				min, have = c, []int{i}
			case c.Equals(min):
				have = append(have, i)
			}
		}
		if !min.Defined() {
			return nil
		}
		if err := f(min, have); err != nil {
			return err
		}
		for _, i := range have {
			if err := recv(i); err != nil {
				return err
			}
		}
	}
}

// Sync synchronizes two or more stores.
// When a CID is found to be in some but not all stores,
// its block is copied to the stores where it's missing.
// Blocks are verified before they are copied.
// Sync returns the number of blocks written.
func Sync(ctx context.Context, stores []dagdelta.Store) (int, error) {
	if len(stores) < 2 {
		return 0, nil
	}

	type need struct {
		c    cid.Cid
		from int
		to   []int
	}

	// Gather everything first,
	// since stores may not tolerate writes while they are being listed.
	var needs []need
	err := Merge(ctx, stores, cid.Undef, func(c cid.Cid, have []int) error {
		if len(have) == len(stores) {
			return nil
		}
		n := need{c: c, from: have[0]}
		j := 0
		for i := range stores {
			if j < len(have) && have[j] == i {
				j++
				continue
			}
			n.to = append(n.to, i)
		}
		needs = append(needs, n)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "listing stores")
	}

	var written int
	for _, n := range needs {
		b, err := dagdelta.Fetch(ctx, stores[n.from], n.c)
		if err != nil {
			return written, errors.Wrapf(err, "getting block %s", n.c)
		}
		for _, i := range n.to {
			if _, err := stores[i].PutBlock(ctx, b); err != nil {
				return written, errors.Wrapf(err, "storing block %s", n.c)
			}
			written++
		}
	}
	return written, nil
}
