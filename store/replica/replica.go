// Package replica implements a block store that writes through to several nested stores.
package replica

import (
	"context"
	"reflect"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = (*Store)(nil)

// Store is a block store that delegates reads and writes to two sets of nested stores.
// One set is synchronous:
// writes to all of these must succeed before a call to PutBlock returns,
// and an error from any will cause PutBlock to fail.
// The other set is asynchronous:
// a call to PutBlock queues writes on these stores but does not wait for them to finish.
// However, if any asynchronous write encounters an error,
// the whole Store is put into an error state and further operations will fail.
type Store struct {
	sync   []dagdelta.Store
	async  []chan<- dagdelta.Block
	cancel context.CancelFunc

	mu  sync.Mutex // protects err
	err error      // the error from an async goroutine, if any
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// If there are any asynchronous stores,
// goroutines are launched for them,
// and canceling the given context object causes those to exit,
// placing the Store in an error state.
//
// Normally, writes to asynchronous stores do not block calls to PutBlock,
// but the queue for each nested store has a fixed length given by n,
// which must be 1 or greater.
// If any async store falls too far behind,
// PutBlock will block until all requests can be queued.
func New(ctx context.Context, sync []dagdelta.Store, async []dagdelta.Store, n int) (*Store, error) {
	if len(sync) == 0 {
		return nil, errors.New("no synchronous stores")
	}
	if n < 1 {
		n = 1
	}

	result := &Store{sync: sync}
	if len(async) == 0 {
		return result, nil
	}

	ctx, result.cancel = context.WithCancel(ctx)

	selectCases := make([]reflect.SelectCase, 1+len(async))
	for i, a := range async {
		var (
			blocks = make(chan dagdelta.Block, n)
			errs   = make(chan error, 1)
		)
		result.async = append(result.async, blocks)

		selectCases[i].Dir = reflect.SelectRecv
		selectCases[i].Chan = reflect.ValueOf(errs)

		go runAsync(ctx, a, blocks, errs)
	}

	selectCases[len(async)].Dir = reflect.SelectRecv
	selectCases[len(async)].Chan = reflect.ValueOf(ctx.Done())

	go func() {
		_, errval, ok := reflect.Select(selectCases)
		result.cancel()
		if ok {
			result.setErr(errval.Interface().(error))
		} else {
			result.setErr(ctx.Err())
		}
	}()

	return result, nil
}

// Runs as a goroutine until ctx is canceled or an error occurs (which it writes to errs).
func runAsync(ctx context.Context, s dagdelta.Store, blocks <-chan dagdelta.Block, errs chan<- error) {
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			return

		case b := <-blocks:
			if _, err := s.PutBlock(ctx, b); err != nil {
				errs <- errors.Wrapf(err, "storing block %s", b.CID)
				return
			}
		}
	}
}

// PutBlock stores b in all synchronous nested stores.
// An error from any of them causes PutBlock to return an error.
//
// Some nested stores may already have the block and others may not;
// the result reports whether any of them had to add it.
//
// A request to write the block is queued for any asynchronous nested stores.
// Normally this does not block the call to PutBlock,
// but if any async store falls too far behind,
// PutBlock must wait for space to open in its request queue before proceeding.
// The size of this queue is given by the int passed to New.
func (s *Store) PutBlock(ctx context.Context, b dagdelta.Block) (bool, error) {
	if err := s.checkErr(); err != nil {
		return false, errors.Wrap(err, "in async-store goroutine")
	}

	var (
		mu    sync.Mutex
		added bool
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			ok, err := nested.PutBlock(gctx, b)
			if err != nil {
				return err
			}
			mu.Lock()
			added = added || ok
			mu.Unlock()
			return nil
		})
	}

	for _, ch := range s.async {
		select {
		case <-ctx.Done():
			g.Wait()
			return false, ctx.Err()
		case ch <- b:
		}
	}

	if err := g.Wait(); err != nil {
		return false, err
	}
	return added, nil
}

// FetchBlock delegates the request to all of the synchronous stores in s,
// returning the result from the first one to respond without error
// and canceling the request to the others.
// If all synchronous stores respond with an error,
// one of those errors is returned,
// preferring one that is not dagdelta.ErrNotFound.
func (s *Store) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	if err := s.checkErr(); err != nil {
		return nil, errors.Wrap(err, "in async-store goroutine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}

	ch := make(chan result, len(s.sync))
	for _, nested := range s.sync {
		nested := nested
		go func() {
			data, err := nested.FetchBlock(ctx, c)
			ch <- result{data: data, err: err}
		}()
	}

	err := dagdelta.ErrNotFound
	for range s.sync {
		r := <-ch
		if r.err == nil {
			return r.data, nil
		}
		if !errors.Is(r.err, dagdelta.ErrNotFound) {
			err = r.err
		}
	}
	return nil, err
}

// ListCIDs delegates the request to all of the synchronous stores in s
// and synthesizes the result from the union of their CIDs.
func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in async-store goroutine")
	}
	return store.Merge(ctx, s.sync, start, func(c cid.Cid, _ []int) error {
		return f(c)
	})
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
		syncStores, err := createAll(ctx, conf, "sync")
		if err != nil {
			return nil, err
		}
		asyncStores, err := createAll(ctx, conf, "async")
		if err != nil {
			return nil, err
		}
		queueLen, ok := store.IntParam(conf, "queuelen")
		if !ok {
			queueLen = 10
		}
		return New(ctx, syncStores, asyncStores, queueLen)
	})
}

func createAll(ctx context.Context, conf map[string]interface{}, key string) ([]dagdelta.Store, error) {
	items, _ := conf[key].([]interface{})

	var result []dagdelta.Store
	for i, item := range items {
		nested, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf(`"%s" item %d is not an object`, key, i)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.Errorf(`"%s" item %d missing "type"`, key, i)
		}
		s, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating nested %s store %d", key, i)
		}
		result = append(result, s)
	}
	return result, nil
}
