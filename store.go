package dagdelta

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// Fetcher retrieves blocks that are not resident locally.
// File trees consult a Fetcher, if they have one,
// when a block is missing from their own maps.
type Fetcher interface {
	// FetchBlock gets the bytes of the block with the given CID.
	// It returns ErrNotFound if the block is not available.
	// The result is not verified against c;
	// callers should use Fetch for that.
	FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error)
}

// Store is a Fetcher that can also store blocks.
type Store interface {
	Fetcher

	// PutBlock adds b to the store if it was not already present.
	// It returns true iff the block had to be added.
	PutBlock(ctx context.Context, b Block) (added bool, err error)

	// ListCIDs calls a function for each CID in the store in ascending order,
	// beginning with the first CID _after_ the specified one.
	// (Pass cid.Undef to start at the beginning.)
	//
	// If the callback function returns an error,
	// ListCIDs exits with that error.
	ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error
}

// Fetch gets the block with CID c from f and verifies it.
func Fetch(ctx context.Context, f Fetcher, c cid.Cid) (Block, error) {
	if err := CheckCodec(c); err != nil {
		return Block{}, err
	}
	data, err := f.FetchBlock(ctx, c)
	if err != nil {
		return Block{}, err
	}
	b, err := VerifiedBlock(c, data)
	return b, errors.Wrap(err, "verifying fetched block")
}
