// Package gcs implements a block store on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of a block store.
// Each block is an object named by the hex encoding of its binary CID,
// so object-name order is CID order.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

const objPrefix = "b:"

// FetchBlock gets the bytes of the block with the given CID.
func (s *Store) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	name := objName(c)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, dagdelta.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	data := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, data)
	return data, errors.Wrapf(err, "reading contents of object %s", name)
}

// PutBlock adds a block to the store if it wasn't already present.
func (s *Store) PutBlock(ctx context.Context, b dagdelta.Block) (bool, error) {
	var (
		name = objName(b.CID)
		obj  = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w    = obj.NewWriter(ctx)
	)

	_, err := w.Write(b.Data)
	if cerr := w.Close(); err == nil {
		err = cerr
	}

	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "writing object %s", name)
	}
	return true, nil
}

// ListCIDs produces all CIDs in the store, in ascending order.
func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	if !start.Defined() {
		return s.listCIDs(ctx, "", f)
	}

	// Google Cloud Storage iterators have no API for starting in the middle of a bucket.
	// But they can filter by object-name prefix.
	// So we take (the hex encoding of) `start` and repeatedly compute prefixes for the objects we want.
	// If `start` is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	// No CID is a proper prefix of another, so nothing is skipped.
	return eachHexPrefix(hex.EncodeToString(start.Bytes()), false, func(prefix string) error {
		return s.listCIDs(ctx, prefix, f)
	})
}

func (s *Store) listCIDs(ctx context.Context, prefix string, f func(cid.Cid) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: objPrefix + prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over objects")
		}
		c, err := cidFromObjName(obj.Name)
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", obj.Name)
		}
		if err = f(c); err != nil {
			return err
		}
	}
}

func eachHexPrefix(prefix string, incl bool, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		end := hexval(prefix[len(prefix)-1])
		if !incl {
			end++
		}
		prefix = prefix[:len(prefix)-1]
		for c := end; c < 16; c++ {
			if err := f(prefix + string(hexdigit(c))); err != nil {
				return err
			}
		}
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	case 'A' <= b && b <= 'F':
		return int(10 + b - 'A')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte(n + '0')
	}
	return byte(n - 10 + 'a')
}

func objName(c cid.Cid) string {
	return objPrefix + hex.EncodeToString(c.Bytes())
}

func cidFromObjName(name string) (cid.Cid, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(name, objPrefix))
	if err != nil {
		return cid.Undef, err
	}
	return cid.Cast(b)
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
