package filetree

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/iter"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/dagpb"
)

// item is a child awaiting placement in a node:
// a chunk at the leaf level, a node above that.
type item struct {
	link     dagpb.Link
	boundary bool
}

// build assembles a tree from buf and its chunk offsets.
//
// Chunks are hashed concurrently.
// Then, one level at a time,
// consecutive items are grouped into nodes,
// each group closing after an item whose CID is a boundary,
// until a single node remains.
// The leaf level always runs,
// so even a single chunk is wrapped in a node.
func build(ctx context.Context, buf []byte, offsets []int, conf *config) (*Tree, error) {
	chunks, err := hashChunks(ctx, buf, offsets, conf)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		chunks:  make(map[cid.Cid]Chunk, len(chunks)),
		nodes:   make(map[cid.Cid]dagdelta.Block),
		fetcher: conf.fetcher,
	}

	items := make([]item, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := t.chunks[c.CID]; !ok {
			t.chunks[c.CID] = c
		}
		items = append(items, item{
			link:     dagpb.Link{Size: uint64(c.Size()), CID: c.CID},
			boundary: c.Boundary,
		})
	}

	for level := 0; ; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		groups := group(items)
		if level > 0 && len(groups) == len(items) {
			// Every item is a boundary, so grouping made no progress.
			groups = [][]item{items}
		}

		blocks, err := iter.MapErr(groups, func(g *[]item) (dagdelta.Block, error) {
			links := make([]dagpb.Link, 0, len(*g))
			for _, it := range *g {
				links = append(links, it.link)
			}
			return dagpb.EncodeNode(links)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "encoding level %d", level)
		}

		next := make([]item, 0, len(blocks))
		for i, b := range blocks {
			t.nodes[b.CID] = b

			var size uint64
			for _, it := range groups[i] {
				size += it.link.Size
			}
			next = append(next, item{
				link:     dagpb.Link{Size: size, CID: b.CID},
				boundary: dagdelta.IsBoundary(b.CID),
			})
		}
		items = next

		if len(items) == 1 {
			break
		}
	}

	t.root = items[0].link.CID
	t.size = items[0].link.Size
	t.index()

	return t, nil
}

// group splits items into runs,
// each ending with a boundary item or with the last item.
func group(items []item) [][]item {
	var (
		groups  [][]item
		pending []item
	)
	for _, it := range items {
		pending = append(pending, it)
		if it.boundary {
			groups = append(groups, pending)
			pending = nil
		}
	}
	if len(pending) > 0 {
		groups = append(groups, pending)
	}
	return groups
}

// hashChunks computes the CID of each chunk of buf.
// It stops before the next chunk is hashed if ctx is canceled.
func hashChunks(ctx context.Context, buf []byte, offsets []int, conf *config) ([]Chunk, error) {
	chunks := make([]Chunk, len(offsets)-1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conf.concurrency)

	for i := range chunks {
		if gctx.Err() != nil {
			break
		}

		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var (
				start, end = offsets[i], offsets[i+1]
				data       = buf[start:end]
				c          = dagpb.EncodeChunk(data).CID
			)
			chunks[i] = Chunk{
				Start:    int64(start),
				End:      int64(end),
				CID:      c,
				Boundary: dagdelta.IsBoundary(c),
			}
			if !conf.dropBytes {
				chunks[i].data = data
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "hashing chunks")
	}
	// The loop may have stopped early without any goroutine seeing the cancellation.
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "hashing chunks")
	}
	return chunks, nil
}
