package dagdelta

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// Block is an addressable unit of a file DAG:
// encoded bytes together with their CID.
type Block struct {
	CID  cid.Cid
	Data []byte
}

// NewBlock produces the Block for data under the given codec.
func NewBlock(codec uint64, data []byte) Block {
	return Block{CID: Sum(codec, data), Data: data}
}

// Codec returns the codec tag of the block.
func (b Block) Codec() uint64 {
	return b.CID.Type()
}

// Verify checks that b.Data hashes to b.CID.
func (b Block) Verify() error {
	if !b.CID.Defined() {
		return errors.Wrap(ErrCorruptBlock, "undefined CID")
	}
	got, err := b.CID.Prefix().Sum(b.Data)
	if err != nil {
		return errors.Wrapf(err, "hashing block %s", b.CID)
	}
	if !got.Equals(b.CID) {
		return errors.Wrapf(ErrCorruptBlock, "block %s hashes to %s", b.CID, got)
	}
	return nil
}

// VerifiedBlock produces a Block from a CID and data purportedly matching it,
// failing with ErrCorruptBlock if they do not match.
func VerifiedBlock(c cid.Cid, data []byte) (Block, error) {
	b := Block{CID: c, Data: data}
	return b, b.Verify()
}
