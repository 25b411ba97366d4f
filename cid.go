package dagdelta

import (
	"sort"
	"strings"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// Codec tags for the two kinds of block in a file DAG.
const (
	// Raw is the codec of a block holding a chunk of file content.
	Raw = cid.Raw

	// DagPB is the codec of a tree node block.
	DagPB = cid.DagProtobuf
)

// Sum computes the CID of data under the given codec.
// The multihash is always sha2-256.
func Sum(codec uint64, data []byte) cid.Cid {
	h, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		// sha2-256 is always registered.
		panic(err)
	}
	return cid.NewCidV1(codec, h)
}

// CheckCodec returns ErrUnknownBlockTag unless c is a Raw or DagPB CID.
func CheckCodec(c cid.Cid) error {
	switch c.Type() {
	case Raw, DagPB:
		return nil
	}
	return errors.Wrapf(ErrUnknownBlockTag, "codec 0x%x in %s", c.Type(), c)
}

// Less tells whether a sorts before b.
// CIDs are ordered bytewise by their binary form.
func Less(a, b cid.Cid) bool {
	return strings.Compare(a.KeyString(), b.KeyString()) < 0
}

// SortCIDs sorts cids in place, in ascending order.
func SortCIDs(cids []cid.Cid) {
	sort.Slice(cids, func(i, j int) bool { return Less(cids[i], cids[j]) })
}

// IsBoundary tells whether c closes a group during tree construction.
// It does when the last byte of its digest is zero,
// which for a uniformly distributed hash happens with probability 1/256.
// The digest is the tail of the binary CID.
func IsBoundary(c cid.Cid) bool {
	k := c.KeyString()
	return len(k) > 0 && k[len(k)-1] == 0
}
