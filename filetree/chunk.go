package filetree

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/dagpb"
)

// Chunk is a contiguous range of a file's content.
//
// A chunk is either resident, holding its bytes,
// or evicted, holding only its range and CID.
// An evicted chunk can be read again only after Tree.Rehydrate.
type Chunk struct {
	// Start and End delimit the chunk within the file: [Start, End).
	Start, End int64

	CID cid.Cid

	// Boundary tells whether the chunk closes a leaf node.
	Boundary bool

	data []byte // nil when evicted
}

// Size is the length of the chunk in bytes.
func (c Chunk) Size() int64 {
	return c.End - c.Start
}

// Resident tells whether the chunk's bytes are present.
func (c Chunk) Resident() bool {
	return c.data != nil
}

// Bytes returns the content of a resident chunk.
// It fails with dagdelta.ErrMissingBytes if the chunk has been evicted.
func (c Chunk) Bytes() ([]byte, error) {
	if c.data == nil {
		return nil, errors.Wrapf(dagdelta.ErrMissingBytes, "chunk %s at [%d,%d)", c.CID, c.Start, c.End)
	}
	return c.data, nil
}

// Block converts a resident chunk to block form.
func (c Chunk) Block() (dagdelta.Block, error) {
	data, err := c.Bytes()
	if err != nil {
		return dagdelta.Block{}, err
	}
	return dagdelta.Block{CID: c.CID, Data: data}, nil
}

// Evict returns a copy of c without its bytes.
func (c Chunk) Evict() Chunk {
	c.data = nil
	return c
}

// withBytes returns a resident copy of c,
// checking that data hashes to c's CID.
func (c Chunk) withBytes(data []byte) (Chunk, error) {
	if int64(len(data)) != c.Size() {
		return Chunk{}, errors.Wrapf(dagdelta.ErrSizeMismatch, "chunk %s: got %d bytes, want %d", c.CID, len(data), c.Size())
	}
	if got := dagpb.EncodeChunk(data).CID; !got.Equals(c.CID) {
		return Chunk{}, errors.Wrapf(dagdelta.ErrCorruptBlock, "bytes at [%d,%d) hash to %s, want %s", c.Start, c.End, got, c.CID)
	}
	c.data = data
	return c, nil
}
