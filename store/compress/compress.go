// Package compress implements a block store that compresses and uncompresses blocks
// on their way into and out of a nested store.
//
// Blocks keep their CIDs in the nested store.
// The stored bytes are a one-byte algorithm tag,
// the uvarint length of the original data,
// and the compressed payload.
// Data that does not compress is stored under the "none" tag.
package compress

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zstd"
	"github.com/multiformats/go-varint"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = &Store{}

// Algorithm identifies a compression method.
// Its value is the tag byte written ahead of each stored block.
type Algorithm uint8

const (
	None Algorithm = 0
	LZ4  Algorithm = 1
	Zstd Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses the name of a compression method.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	}
	return 0, errors.Errorf("unknown compression algorithm %q", name)
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(errors.Wrap(err, "creating zstd encoder"))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(errors.Wrap(err, "creating zstd decoder"))
	}
}

// Store compresses blocks written to a nested store.
type Store struct {
	s dagdelta.Store
	a Algorithm
}

// New produces a new Store writing to s with the given algorithm.
// Blocks written under any algorithm can be read back regardless of a.
func New(s dagdelta.Store, a Algorithm) (*Store, error) {
	switch a {
	case None, LZ4, Zstd:
		return &Store{s: s, a: a}, nil
	}
	return nil, errors.Errorf("unknown compression algorithm %d", uint8(a))
}

// FetchBlock gets the uncompressed bytes of the block with the given CID.
func (s *Store) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	stored, err := s.s.FetchBlock(ctx, c)
	if err != nil {
		return nil, err
	}
	data, err := Decode(stored)
	return data, errors.Wrapf(err, "decoding block %s", c)
}

// PutBlock compresses b and adds it to the nested store if it wasn't already present.
func (s *Store) PutBlock(ctx context.Context, b dagdelta.Block) (bool, error) {
	stored, err := Encode(b.Data, s.a)
	if err != nil {
		return false, errors.Wrapf(err, "encoding block %s", b.CID)
	}
	return s.s.PutBlock(ctx, dagdelta.Block{CID: b.CID, Data: stored})
}

// ListCIDs produces all CIDs in the nested store, in ascending order.
func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	return s.s.ListCIDs(ctx, start, f)
}

// Encode compresses data with a and adds the tag and length prefix.
// It falls back to None when compression would not save space.
func Encode(data []byte, a Algorithm) ([]byte, error) {
	var payload []byte

	switch a {
	case None:

	case LZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, errors.Wrap(err, "lz4 compress")
		}
		// CompressBlock returns 0 for incompressible input.
		if n > 0 {
			payload = dst[:n]
		}

	case Zstd:
		payload = zstdEncoder.EncodeAll(data, nil)

	default:
		return nil, errors.Errorf("unknown compression algorithm %d", uint8(a))
	}

	if payload == nil || len(payload) >= len(data) {
		a, payload = None, data
	}

	out := make([]byte, 0, 1+varint.UvarintSize(uint64(len(data)))+len(payload))
	out = append(out, byte(a))
	out = append(out, varint.ToUvarint(uint64(len(data)))...)
	return append(out, payload...), nil
}

// Decode reverses Encode.
func Decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.New("empty block")
	}
	a := Algorithm(stored[0])
	size, n, err := varint.FromUvarint(stored[1:])
	if err != nil {
		return nil, errors.Wrap(err, "reading size")
	}
	payload := stored[1+n:]

	switch a {
	case None:
		if uint64(len(payload)) != size {
			return nil, errors.Errorf("uncompressed block has %d bytes, want %d", len(payload), size)
		}
		return payload, nil

	case LZ4:
		if size > uint64(len(payload))*255 {
			return nil, errors.Errorf("lz4 block claims implausible size %d", size)
		}
		dst := make([]byte, size)
		got, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, errors.Wrap(err, "lz4 decompress")
		}
		if uint64(got) != size {
			return nil, errors.Errorf("lz4 decompress: got %d bytes, want %d", got, size)
		}
		return dst, nil

	case Zstd:
		data, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, errors.Wrap(err, "zstd decompress")
		}
		if uint64(len(data)) != size {
			return nil, errors.Errorf("zstd decompress: got %d bytes, want %d", len(data), size)
		}
		return data, nil
	}

	return nil, errors.Errorf("unknown compression tag %d", uint8(a))
}

func init() {
	store.Register("compress", func(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
		a := LZ4
		if name, ok := conf["algorithm"].(string); ok {
			var err error
			a, err = ParseAlgorithm(name)
			if err != nil {
				return nil, err
			}
		}
		nestedStore, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nestedStore, a)
	})
}
