package dagdelta

import "github.com/pkg/errors"

// Errors returned by this module.
// They are usually wrapped with context;
// test for them with errors.Is.
var (
	// ErrEmptyInput means chunking produced no chunks.
	ErrEmptyInput = errors.New("empty input")

	// ErrChunkingFailed means a chunker violated its contract.
	ErrChunkingFailed = errors.New("chunking failed")

	// ErrMalformedNode means a tree node block could not be decoded.
	ErrMalformedNode = errors.New("malformed node")

	// ErrUnknownBlockTag means a CID carries a codec other than Raw or DagPB.
	ErrUnknownBlockTag = errors.New("unknown block tag")

	// ErrTruncatedArchive means an archive ended before it was complete.
	ErrTruncatedArchive = errors.New("truncated archive")

	// ErrMalformedArchive means an archive is not well formed.
	ErrMalformedArchive = errors.New("malformed archive")

	// ErrUnknownBlock means a lookup found no block for a CID.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrUnresolvableBlock means a delta could not find a block in either tree.
	ErrUnresolvableBlock = errors.New("unresolvable block")

	// ErrInsufficientOriginData means the source supplied to apply a delta
	// lacks blocks the delta depends on.
	ErrInsufficientOriginData = errors.New("source does not have enough origin data to apply delta")

	// ErrSizeMismatch means reconstructed content disagrees with the size recorded in the DAG.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrMissingBytes means a chunk's bytes were dropped and not supplied again.
	ErrMissingBytes = errors.New("missing chunk bytes")

	// ErrInvalidInlineEncoding means an inline reference could not be decoded.
	ErrInvalidInlineEncoding = errors.New("invalid inline encoding")

	// ErrCorruptBlock means a block's bytes do not hash to its CID.
	ErrCorruptBlock = errors.New("corrupt block")

	// ErrNotFound is the error returned
	// when a Fetcher has no block for a CID.
	ErrNotFound = errors.New("not found")
)
