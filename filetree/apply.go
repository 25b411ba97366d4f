package filetree

import (
	"bytes"
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/archive"
)

// Apply reconstructs the file described by a serialized archive
// (compressed or not),
// typically one produced by Delta.Export.
// Blocks are taken from the archive when present
// and otherwise from source.
//
// It fails with dagdelta.ErrInsufficientOriginData
// if a needed block is in neither,
// which means source is not the tree the delta was computed against
// (or one sharing the needed content).
// It fails with dagdelta.ErrMissingBytes
// if source has the needed chunk but its bytes were evicted
// and cannot be fetched;
// rehydrating source fixes that.
// It fails with dagdelta.ErrSizeMismatch
// if the content disagrees with the sizes recorded in the DAG.
// No partial output is returned on failure.
func Apply(ctx context.Context, source *Tree, archiveBytes []byte) ([]byte, error) {
	a, err := archive.Open(archiveBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing archive")
	}
	return ApplyArchive(ctx, source, a)
}

// ApplyArchive is like Apply but takes a parsed archive.
func ApplyArchive(ctx context.Context, source *Tree, a *archive.Archive) ([]byte, error) {
	var (
		buf = new(bytes.Buffer)
		asm = &assembler{get: originResolver(source, a), w: buf}
	)
	size, err := asm.assemble(ctx, a.Root)
	if err != nil {
		return nil, err
	}
	if uint64(buf.Len()) != size {
		return nil, errors.Wrapf(dagdelta.ErrSizeMismatch, "reconstructed %d bytes, root %s has size %d", buf.Len(), a.Root, size)
	}
	return buf.Bytes(), nil
}

// ApplyTree is like ApplyArchive but produces the destination as a Tree.
// The new tree holds its own copies of every block it needs,
// so it does not depend on source afterwards.
func ApplyTree(ctx context.Context, source *Tree, a *archive.Archive, opts ...Option) (*Tree, error) {
	return collect(ctx, a.Root, originResolver(source, a), newConfig(opts))
}

// FromArchive reconstructs a tree from an archive holding all of its blocks,
// such as one produced by Tree.Export.
// Blocks missing from the archive are requested from the Fetcher
// given with WithFetcher, if any.
func FromArchive(ctx context.Context, a *archive.Archive, opts ...Option) (*Tree, error) {
	conf := newConfig(opts)
	get := func(ctx context.Context, c cid.Cid) (dagdelta.Block, error) {
		if b, ok := a.Blocks[c]; ok {
			return b, nil
		}
		if conf.fetcher != nil {
			b, err := dagdelta.Fetch(ctx, conf.fetcher, c)
			if err == nil || !errors.Is(err, dagdelta.ErrNotFound) {
				return b, errors.Wrapf(err, "fetching %s", c)
			}
		}
		return dagdelta.Block{}, errors.Wrapf(dagdelta.ErrUnknownBlock, "block %s not in archive", c)
	}
	return collect(ctx, a.Root, get, conf)
}

// Load reconstructs the tree with the given root from the blocks held by f,
// such as a store populated from Tree.Blocks.
// Unless WithFetcher says otherwise,
// f also becomes the new tree's Fetcher,
// so with WithDropBytes the tree's chunks stay in f and not in memory.
func Load(ctx context.Context, f dagdelta.Fetcher, root cid.Cid, opts ...Option) (*Tree, error) {
	conf := newConfig(opts)
	if conf.fetcher == nil {
		conf.fetcher = f
	}
	get := func(ctx context.Context, c cid.Cid) (dagdelta.Block, error) {
		b, err := dagdelta.Fetch(ctx, f, c)
		if errors.Is(err, dagdelta.ErrNotFound) {
			return dagdelta.Block{}, errors.Wrapf(dagdelta.ErrUnknownBlock, "block %s not in store", c)
		}
		return b, errors.Wrapf(err, "fetching %s", c)
	}
	return collect(ctx, root, get, conf)
}

func originResolver(source *Tree, a *archive.Archive) func(context.Context, cid.Cid) (dagdelta.Block, error) {
	return func(ctx context.Context, c cid.Cid) (dagdelta.Block, error) {
		if b, ok := a.Blocks[c]; ok {
			return b, nil
		}
		b, err := source.GetBlock(ctx, c)
		if errors.Is(err, dagdelta.ErrUnknownBlock) {
			return dagdelta.Block{}, errors.Wrapf(dagdelta.ErrInsufficientOriginData, "block %s", c)
		}
		return b, errors.Wrapf(err, "block %s", c)
	}
}

// collect builds a tree from the DAG beneath root,
// resolving each block with get.
func collect(ctx context.Context, root cid.Cid, get func(context.Context, cid.Cid) (dagdelta.Block, error), conf *config) (*Tree, error) {
	t := &Tree{
		root:    root,
		chunks:  make(map[cid.Cid]Chunk),
		nodes:   make(map[cid.Cid]dagdelta.Block),
		fetcher: conf.fetcher,
	}
	asm := &assembler{get: get, tree: t}
	size, err := asm.assemble(ctx, root)
	if err != nil {
		return nil, err
	}
	if asm.pos != size {
		return nil, errors.Wrapf(dagdelta.ErrSizeMismatch, "chunks total %d bytes, root %s has size %d", asm.pos, root, size)
	}
	t.size = size

	if conf.dropBytes {
		for c, ch := range t.chunks {
			t.chunks[c] = ch.Evict()
		}
	}
	t.index()

	return t, nil
}
