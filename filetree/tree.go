// Package filetree represents a file as a Merkle DAG of content-defined chunks,
// computes deltas between two such trees,
// and applies deltas to reconstruct a file.
//
// A tree is built by splitting a file into chunks
// (see package chunker),
// grouping consecutive chunks into leaf nodes,
// and grouping those nodes into higher nodes,
// until a single root remains.
// Group boundaries are chosen pseudo-randomly from the CIDs of the grouped items,
// so an edit to a file changes only the chunks and nodes along its path.
// Everything else keeps its CID,
// which is what makes deltas small.
//
// A Tree is immutable and safe for concurrent use.
package filetree

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/chunker"
)

// Tree is a file materialized as a DAG of blocks.
type Tree struct {
	root    cid.Cid
	size    uint64
	chunks  map[cid.Cid]Chunk
	nodes   map[cid.Cid]dagdelta.Block
	cids    map[cid.Cid]struct{}
	fetcher dagdelta.Fetcher
}

// FromBytes builds the tree for the content in buf.
// The tree keeps its own copy of buf
// (unless WithDropBytes is given, in which case it keeps none).
//
// It fails with dagdelta.ErrEmptyInput if buf produces no chunks,
// and with dagdelta.ErrChunkingFailed if the chunker misbehaves.
func FromBytes(ctx context.Context, buf []byte, opts ...Option) (*Tree, error) {
	conf := newConfig(opts)

	if err := conf.sizes.Validate(); err != nil {
		return nil, errors.Wrap(err, "chunk sizes")
	}

	offsets, err := conf.chunk(buf, conf.sizes.Min, conf.sizes.Max, conf.sizes.Avg)
	if err != nil {
		return nil, errors.Wrapf(dagdelta.ErrChunkingFailed, "%s", err)
	}
	if err := chunker.Validate(offsets, len(buf), conf.sizes); err != nil {
		return nil, err
	}

	if !conf.dropBytes {
		buf = bytes.Clone(buf)
	}
	return build(ctx, buf, offsets, conf)
}

// FromReader builds the tree for the content of r.
func FromReader(ctx context.Context, r io.Reader, opts ...Option) (*Tree, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading input")
	}
	return FromBytes(ctx, buf, opts...)
}

// FromFile builds the tree for the content of the named file.
func FromFile(ctx context.Context, filename string, opts ...Option) (*Tree, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filename)
	}
	return FromBytes(ctx, buf, opts...)
}

func (t *Tree) index() {
	t.cids = make(map[cid.Cid]struct{}, len(t.chunks)+len(t.nodes))
	for c := range t.chunks {
		t.cids[c] = struct{}{}
	}
	for c := range t.nodes {
		t.cids[c] = struct{}{}
	}
}

// Root is the CID of the tree's root node.
func (t *Tree) Root() cid.Cid {
	return t.root
}

// Size is the length of the file in bytes.
func (t *Tree) Size() uint64 {
	return t.size
}

// Len is the number of distinct blocks in the tree, chunks and nodes together.
func (t *Tree) Len() int {
	return len(t.cids)
}

// Has tells whether the tree contains the block with the given CID.
// It does not consult the tree's Fetcher.
func (t *Tree) Has(c cid.Cid) bool {
	_, ok := t.cids[c]
	return ok
}

// CIDs returns the CIDs of all the blocks in the tree in ascending order.
func (t *Tree) CIDs() []cid.Cid {
	result := make([]cid.Cid, 0, len(t.cids))
	for c := range t.cids {
		result = append(result, c)
	}
	dagdelta.SortCIDs(result)
	return result
}

// Chunks returns the tree's distinct chunks in file order.
// A chunk whose content recurs in the file appears once,
// at its first position.
func (t *Tree) Chunks() []Chunk {
	result := make([]Chunk, 0, len(t.chunks))
	for _, c := range t.chunks {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start < result[j].Start })
	return result
}

// GetBlock gets the block with the given CID.
// Tree nodes and chunks are looked up according to the CID's codec.
// Blocks not held by the tree are requested from its Fetcher, if it has one.
//
// It fails with dagdelta.ErrUnknownBlock if the block cannot be found,
// dagdelta.ErrMissingBytes if it is an evicted chunk,
// and dagdelta.ErrUnknownBlockTag if the CID's codec is neither raw nor dag-pb.
func (t *Tree) GetBlock(ctx context.Context, c cid.Cid) (dagdelta.Block, error) {
	var localErr error

	switch c.Type() {
	case dagdelta.DagPB:
		if b, ok := t.nodes[c]; ok {
			return b, nil
		}

	case dagdelta.Raw:
		if ch, ok := t.chunks[c]; ok {
			b, err := ch.Block()
			if err == nil {
				return b, nil
			}
			localErr = err
		}

	default:
		return dagdelta.Block{}, errors.Wrapf(dagdelta.ErrUnknownBlockTag, "block %s has codec 0x%x", c, c.Type())
	}

	if t.fetcher != nil {
		b, err := dagdelta.Fetch(ctx, t.fetcher, c)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, dagdelta.ErrNotFound) {
			return dagdelta.Block{}, errors.Wrapf(err, "fetching %s", c)
		}
	}

	if localErr != nil {
		return dagdelta.Block{}, localErr
	}
	return dagdelta.Block{}, errors.Wrapf(dagdelta.ErrUnknownBlock, "block %s", c)
}

// Read produces the content of the file.
// It fails with dagdelta.ErrMissingBytes if an evicted chunk cannot be fetched.
func (t *Tree) Read(ctx context.Context) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, t.size))
	if err := t.WriteTo(ctx, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo writes the content of the file to w.
// On error, w may have received a prefix of the content.
func (t *Tree) WriteTo(ctx context.Context, w io.Writer) error {
	a := &assembler{get: t.GetBlock, w: w}
	_, err := a.assemble(ctx, t.root)
	return err
}

// Walk calls f for each node and chunk in the tree,
// depth first and left to right,
// with the depth of each (the root is at depth 0).
// Chunk bytes are not needed,
// so Walk works on trees whose chunks are evicted.
func (t *Tree) Walk(ctx context.Context, f VisitFunc) error {
	a := &assembler{get: t.GetBlock, visit: f}
	_, err := a.assemble(ctx, t.root)
	return err
}

// Rehydrate returns a copy of t whose evicted chunks are resident again,
// with their bytes read from r by range and checked against their CIDs.
// Typically r is the file the tree was built from.
func (t *Tree) Rehydrate(r io.ReaderAt) (*Tree, error) {
	chunks := make(map[cid.Cid]Chunk, len(t.chunks))
	for c, ch := range t.chunks {
		if ch.Resident() {
			chunks[c] = ch
			continue
		}
		buf := make([]byte, ch.Size())
		if n, err := r.ReadAt(buf, ch.Start); n < len(buf) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return nil, errors.Wrapf(err, "reading chunk %s at [%d,%d)", c, ch.Start, ch.End)
		}
		ch, err := ch.withBytes(buf)
		if err != nil {
			return nil, err
		}
		chunks[c] = ch
	}

	return &Tree{
		root:    t.root,
		size:    t.size,
		chunks:  chunks,
		nodes:   t.nodes,
		cids:    t.cids,
		fetcher: t.fetcher,
	}, nil
}

// Delta computes the delta that transforms t into dest.
func (t *Tree) Delta(ctx context.Context, dest *Tree) (*Delta, error) {
	return NewDelta(ctx, t, dest)
}

// Apply reconstructs the file described by an archive,
// with t supplying every block the archive lacks.
// See the package-level Apply function.
func (t *Tree) Apply(ctx context.Context, archiveBytes []byte) ([]byte, error) {
	return Apply(ctx, t, archiveBytes)
}

// Blocks produces every block of the tree in ascending CID order.
// It fails with dagdelta.ErrMissingBytes if the tree has evicted chunks
// that its Fetcher cannot supply.
func (t *Tree) Blocks(ctx context.Context) ([]dagdelta.Block, error) {
	cids := t.CIDs()
	blocks := make([]dagdelta.Block, 0, len(cids))
	for _, c := range cids {
		b, err := t.GetBlock(ctx, c)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Export produces an archive holding every block of the tree.
// It fails with dagdelta.ErrMissingBytes if the tree has evicted chunks.
func (t *Tree) Export(ctx context.Context) ([]byte, error) {
	blocks, err := t.Blocks(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[cid.Cid]dagdelta.Block, len(blocks))
	for _, b := range blocks {
		m[b.CID] = b
	}
	return marshal(t.root, cid.Undef, m)
}
