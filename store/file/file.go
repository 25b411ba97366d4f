// Package file implements a block store as a file hierarchy.
package file

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = &Store{}

// Store is a file-based implementation of a block store.
//
// Each block lives in a file named for the hex encoding of its binary CID.
// Files are sharded into two directory levels
// named by the first 10 and 12 hex digits of the name.
// For the CIDs in a file tree,
// which share a 4-byte prefix,
// that means sharding on the first digest byte.
// Sorting names sorts CIDs in binary order.
type Store struct {
	root string
}

const (
	topLen = 10
	midLen = 12
)

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) blockroot() string {
	return filepath.Join(s.root, "blocks")
}

func (s *Store) blockpath(c cid.Cid) string {
	h := hex.EncodeToString(c.Bytes())
	return filepath.Join(s.blockroot(), h[:topLen], h[:midLen], h)
}

// FetchBlock gets the bytes of the block with the given CID.
func (s *Store) FetchBlock(_ context.Context, c cid.Cid) ([]byte, error) {
	path := s.blockpath(c)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, dagdelta.ErrNotFound
	}
	return data, errors.Wrapf(err, "reading %s", path)
}

// PutBlock adds a block to the store if it wasn't already present.
func (s *Store) PutBlock(_ context.Context, b dagdelta.Block) (bool, error) {
	var (
		path = s.blockpath(b.CID)
		dir  = filepath.Dir(path)
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	if _, err := f.Write(b.Data); err != nil {
		return false, errors.Wrapf(err, "writing data to %s", path)
	}

	return true, errors.Wrapf(f.Close(), "closing %s", path)
}

// ListCIDs produces all CIDs in the store, in ascending order.
func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	if err := os.MkdirAll(s.blockroot(), 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.blockroot())
	}

	topLevel, err := os.ReadDir(s.blockroot())
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.blockroot())
	}

	startHex := hex.EncodeToString(start.Bytes())
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= prefix(startHex, topLen)
	})
	for i := topIndex; i < len(topLevel); i++ {
		topEntry := topLevel[i]
		topName := topEntry.Name()
		if !topEntry.IsDir() || !isHex(topName, topLen) {
			continue
		}

		midLevel, err := os.ReadDir(filepath.Join(s.blockroot(), topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", s.blockroot(), topName)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= prefix(startHex, midLen)
		})
		for j := midIndex; j < len(midLevel); j++ {
			midEntry := midLevel[j]
			midName := midEntry.Name()
			if !midEntry.IsDir() || !isHex(midName, midLen) {
				continue
			}

			blockEntries, err := os.ReadDir(filepath.Join(s.blockroot(), topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s/%s", s.blockroot(), topName, midName)
			}

			index := sort.Search(len(blockEntries), func(n int) bool {
				return blockEntries[n].Name() > startHex
			})
			for k := index; k < len(blockEntries); k++ {
				blockEntry := blockEntries[k]
				if blockEntry.IsDir() {
					continue
				}

				b, err := hex.DecodeString(blockEntry.Name())
				if err != nil {
					continue
				}
				c, err := cid.Cast(b)
				if err != nil {
					continue
				}

				if err := ctx.Err(); err != nil {
					return err
				}
				if err := f(c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
