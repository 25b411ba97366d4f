package filetree

import (
	"context"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/dagpb"
)

// VisitFunc is the type of the callback passed to Tree.Walk.
// For a tree node, n is the decoded node.
// For a chunk, n is nil.
type VisitFunc func(c cid.Cid, size uint64, depth int, n *dagpb.Node) error

// assembler walks a DAG depth first and left to right,
// resolving blocks with get.
// Every link's recorded size is checked against the size of its target.
type assembler struct {
	get func(context.Context, cid.Cid) (dagdelta.Block, error)

	// If w is non-nil, it receives the content of each chunk in order.
	// If w and tree are both nil, chunks are not resolved at all.
	w io.Writer

	// If tree is non-nil, every resolved block is added to its maps.
	tree *Tree

	visit VisitFunc

	pos uint64 // file offset of the next chunk
}

// assemble walks the DAG beneath root, which must be a tree node,
// and returns the size of its content.
func (a *assembler) assemble(ctx context.Context, root cid.Cid) (uint64, error) {
	if root.Type() != dagdelta.DagPB {
		return 0, errors.Wrapf(dagdelta.ErrMalformedNode, "root %s is not a tree node", root)
	}
	n, err := a.node(ctx, root, 0)
	if err != nil {
		return 0, err
	}
	return n.Size(), nil
}

func (a *assembler) node(ctx context.Context, c cid.Cid, depth int) (*dagpb.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := a.get(ctx, c)
	if err != nil {
		return nil, err
	}
	n, err := dagpb.DecodeNode(b)
	if err != nil {
		return nil, err
	}
	if a.tree != nil {
		a.tree.nodes[c] = b
	}
	if a.visit != nil {
		if err := a.visit(c, n.Size(), depth, n); err != nil {
			return nil, err
		}
	}

	for _, l := range n.Links {
		switch l.CID.Type() {
		case dagdelta.DagPB:
			child, err := a.node(ctx, l.CID, depth+1)
			if err != nil {
				return nil, err
			}
			if child.Size() != l.Size {
				return nil, errors.Wrapf(dagdelta.ErrSizeMismatch, "node %s links to %s with size %d, but it has size %d", c, l.CID, l.Size, child.Size())
			}

		case dagdelta.Raw:
			if err := a.chunk(ctx, l, depth+1); err != nil {
				return nil, err
			}

		default:
			return nil, errors.Wrapf(dagdelta.ErrUnknownBlockTag, "node %s links to %s with codec 0x%x", c, l.CID, l.CID.Type())
		}
	}

	return n, nil
}

func (a *assembler) chunk(ctx context.Context, l dagpb.Link, depth int) error {
	start := a.pos
	a.pos += l.Size

	if a.visit != nil {
		if err := a.visit(l.CID, l.Size, depth, nil); err != nil {
			return err
		}
	}
	if a.w == nil && a.tree == nil {
		return nil
	}

	b, err := a.get(ctx, l.CID)
	if err != nil {
		return err
	}
	if uint64(len(b.Data)) != l.Size {
		return errors.Wrapf(dagdelta.ErrSizeMismatch, "chunk %s has size %d, want %d", l.CID, len(b.Data), l.Size)
	}
	if a.tree != nil {
		if _, ok := a.tree.chunks[l.CID]; !ok {
			a.tree.chunks[l.CID] = Chunk{
				Start:    int64(start),
				End:      int64(a.pos),
				CID:      l.CID,
				Boundary: dagdelta.IsBoundary(l.CID),
				data:     b.Data,
			}
		}
	}
	if a.w != nil {
		if _, err := a.w.Write(b.Data); err != nil {
			return errors.Wrap(err, "writing chunk")
		}
	}
	return nil
}
