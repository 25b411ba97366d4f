package filetree

import (
	"context"
	"io"
	"runtime"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/archive"
)

// Delta holds the blocks of a destination tree that a source tree lacks,
// together with both roots.
type Delta struct {
	Source, Dest cid.Cid
	Blocks       map[cid.Cid]dagdelta.Block
}

// NewDelta computes the delta from source to dest:
// every block whose CID is in dest but not in source.
//
// Since identical subtrees have identical CIDs,
// the parts of dest unchanged from source contribute nothing.
// If both trees have the same root the delta is empty.
//
// It fails with dagdelta.ErrUnresolvableBlock
// if a needed block can be found in neither tree.
func NewDelta(ctx context.Context, source, dest *Tree) (*Delta, error) {
	var want []cid.Cid
	for c := range dest.cids {
		if _, ok := source.cids[c]; !ok {
			want = append(want, c)
		}
	}

	resolved := make([]dagdelta.Block, len(want))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, c := range want {
		i, c := i, c
		g.Go(func() error {
			b, err := resolve(gctx, c, dest, source)
			resolved[i] = b
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	blocks := make(map[cid.Cid]dagdelta.Block, len(resolved))
	for _, b := range resolved {
		blocks[b.CID] = b
	}

	return &Delta{
		Source: source.root,
		Dest:   dest.root,
		Blocks: blocks,
	}, nil
}

// resolve finds the block for c in the first of trees able to supply it.
func resolve(ctx context.Context, c cid.Cid, trees ...*Tree) (dagdelta.Block, error) {
	var errs []error
	for _, t := range trees {
		b, err := t.GetBlock(ctx, c)
		if err == nil {
			return b, nil
		}
		if errors.Is(err, dagdelta.ErrUnknownBlockTag) {
			return dagdelta.Block{}, err
		}
		errs = append(errs, err)
	}
	return dagdelta.Block{}, errors.Wrapf(dagdelta.ErrUnresolvableBlock, "block %s: %v", c, errs)
}

// Len is the number of blocks in the delta.
func (d *Delta) Len() int {
	return len(d.Blocks)
}

// Size is the total size of the blocks in the delta.
func (d *Delta) Size() int {
	var size int
	for _, b := range d.Blocks {
		size += len(b.Data)
	}
	return size
}

// Archive converts the delta to archive form.
func (d *Delta) Archive() *archive.Archive {
	return &archive.Archive{
		Root:   d.Dest,
		Base:   d.Source,
		Blocks: d.Blocks,
	}
}

// Export serializes the delta as an archive.
func (d *Delta) Export() ([]byte, error) {
	return d.Archive().Marshal()
}

// WriteTo writes the serialized delta to w.
func (d *Delta) WriteTo(w io.Writer) (int64, error) {
	return d.Archive().WriteTo(w)
}

func marshal(root, base cid.Cid, blocks map[cid.Cid]dagdelta.Block) ([]byte, error) {
	a := &archive.Archive{Root: root, Base: base, Blocks: blocks}
	return a.Marshal()
}
