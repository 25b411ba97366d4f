// Package dagpb encodes and decodes the blocks of a file DAG.
//
// Chunks are stored verbatim under the raw codec.
// Tree nodes are dag-pb nodes whose data is a UnixFS file message,
// which is the layout other IPFS tooling expects for chunked files.
package dagpb

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bobg/dagdelta"
)

// Field numbers.
const (
	nodeData  protowire.Number = 1
	nodeLinks protowire.Number = 2

	linkHash  protowire.Number = 1
	linkName  protowire.Number = 2
	linkTsize protowire.Number = 3

	unixfsType       protowire.Number = 1
	unixfsData       protowire.Number = 2
	unixfsFilesize   protowire.Number = 3
	unixfsBlocksizes protowire.Number = 4
)

// unixfsFile is the UnixFS data type for a file.
const unixfsFile = 2

// Link is a reference from a tree node to a child block.
type Link struct {
	Name string

	// Size is the number of file bytes beneath the child.
	Size uint64

	CID cid.Cid
}

// Node is a decoded tree node.
type Node struct {
	Links      []Link
	FileSize   uint64
	BlockSizes []uint64
}

// Size is the number of file bytes beneath n.
func (n *Node) Size() uint64 {
	return n.FileSize
}

// EncodeChunk produces the raw block for a chunk of file content.
func EncodeChunk(data []byte) dagdelta.Block {
	return dagdelta.NewBlock(dagdelta.Raw, data)
}

// EncodeNode produces the tree-node block linking to the given children, in order.
// Identical link sequences always produce identical blocks.
func EncodeNode(links []Link) (dagdelta.Block, error) {
	if len(links) == 0 {
		return dagdelta.Block{}, errors.New("node must have at least one link")
	}

	var (
		buf      []byte
		filesize uint64
	)
	for i, l := range links {
		if !l.CID.Defined() {
			return dagdelta.Block{}, errors.Errorf("link %d has no CID", i)
		}
		buf = protowire.AppendTag(buf, nodeLinks, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeLink(l))
		filesize += l.Size
	}

	var data []byte
	data = protowire.AppendTag(data, unixfsType, protowire.VarintType)
	data = protowire.AppendVarint(data, unixfsFile)
	data = protowire.AppendTag(data, unixfsFilesize, protowire.VarintType)
	data = protowire.AppendVarint(data, filesize)
	for _, l := range links {
		data = protowire.AppendTag(data, unixfsBlocksizes, protowire.VarintType)
		data = protowire.AppendVarint(data, l.Size)
	}

	buf = protowire.AppendTag(buf, nodeData, protowire.BytesType)
	buf = protowire.AppendBytes(buf, data)

	return dagdelta.NewBlock(dagdelta.DagPB, buf), nil
}

func encodeLink(l Link) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, linkHash, protowire.BytesType)
	buf = protowire.AppendBytes(buf, l.CID.Bytes())
	buf = protowire.AppendTag(buf, linkName, protowire.BytesType)
	buf = protowire.AppendString(buf, l.Name)
	buf = protowire.AppendTag(buf, linkTsize, protowire.VarintType)
	return protowire.AppendVarint(buf, l.Size)
}

// DecodeNode parses a tree-node block.
// It fails with dagdelta.ErrMalformedNode if b is not a dag-pb block,
// if any field is missing, unknown, repeated, or out of order,
// or if the recorded sizes disagree.
func DecodeNode(b dagdelta.Block) (*Node, error) {
	if b.Codec() != dagdelta.DagPB {
		return nil, errors.Wrapf(dagdelta.ErrMalformedNode, "block %s has codec 0x%x", b.CID, b.Codec())
	}
	n, err := decodeNode(b.Data)
	if err != nil {
		return nil, errors.Wrapf(dagdelta.ErrMalformedNode, "block %s: %s", b.CID, err)
	}
	return n, nil
}

func decodeNode(buf []byte) (*Node, error) {
	var (
		n       Node
		data    []byte
		gotData bool
	)
	for len(buf) > 0 {
		num, val, rest, err := consumeBytesField(buf)
		if err != nil {
			return nil, err
		}
		buf = rest

		if gotData {
			return nil, errors.Errorf("field %d follows data", num)
		}
		switch num {
		case nodeLinks:
			l, err := decodeLink(val)
			if err != nil {
				return nil, errors.Wrapf(err, "link %d", len(n.Links))
			}
			n.Links = append(n.Links, l)

		case nodeData:
			data, gotData = val, true

		default:
			return nil, errors.Errorf("unknown node field %d", num)
		}
	}
	if !gotData {
		return nil, errors.New("missing data")
	}
	if len(n.Links) == 0 {
		return nil, errors.New("no links")
	}
	if err := decodeUnixFS(data, &n); err != nil {
		return nil, errors.Wrap(err, "unixfs data")
	}

	if len(n.BlockSizes) != len(n.Links) {
		return nil, errors.Errorf("%d blocksizes for %d links", len(n.BlockSizes), len(n.Links))
	}
	var sum uint64
	for i, l := range n.Links {
		if n.BlockSizes[i] != l.Size {
			return nil, errors.Errorf("link %d has size %d but blocksize %d", i, l.Size, n.BlockSizes[i])
		}
		sum += l.Size
	}
	if sum != n.FileSize {
		return nil, errors.Errorf("filesize %d but links total %d", n.FileSize, sum)
	}
	return &n, nil
}

func decodeLink(buf []byte) (Link, error) {
	var (
		l    Link
		last protowire.Number
	)
	for len(buf) > 0 {
		num, typ, m := protowire.ConsumeTag(buf)
		if m < 0 {
			return Link{}, protowire.ParseError(m)
		}
		if num <= last {
			return Link{}, errors.Errorf("field %d out of order", num)
		}
		last = num
		buf = buf[m:]

		switch num {
		case linkHash, linkName:
			if typ != protowire.BytesType {
				return Link{}, errors.Errorf("field %d has wire type %d", num, typ)
			}
			val, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return Link{}, protowire.ParseError(m)
			}
			buf = buf[m:]
			if num == linkName {
				l.Name = string(val)
				continue
			}
			c, err := cid.Cast(val)
			if err != nil {
				return Link{}, errors.Wrap(err, "parsing hash")
			}
			l.CID = c

		case linkTsize:
			if typ != protowire.VarintType {
				return Link{}, errors.Errorf("field %d has wire type %d", num, typ)
			}
			v, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return Link{}, protowire.ParseError(m)
			}
			buf = buf[m:]
			l.Size = v

		default:
			return Link{}, errors.Errorf("unknown link field %d", num)
		}
	}
	if !l.CID.Defined() {
		return Link{}, errors.New("missing hash")
	}
	if last < linkTsize {
		return Link{}, errors.New("missing tsize")
	}
	return l, nil
}

func decodeUnixFS(buf []byte, n *Node) error {
	var (
		last        protowire.Number
		gotType     bool
		gotFilesize bool
	)
	for len(buf) > 0 {
		num, typ, m := protowire.ConsumeTag(buf)
		if m < 0 {
			return protowire.ParseError(m)
		}
		if num < last || (num == last && num != unixfsBlocksizes) {
			return errors.Errorf("field %d out of order", num)
		}
		last = num
		buf = buf[m:]

		if typ != protowire.VarintType {
			// This also rejects inline file data and packed blocksizes.
			return errors.Errorf("field %d has wire type %d", num, typ)
		}
		v, m := protowire.ConsumeVarint(buf)
		if m < 0 {
			return protowire.ParseError(m)
		}
		buf = buf[m:]

		switch num {
		case unixfsType:
			if v != unixfsFile {
				return errors.Errorf("unixfs type %d is not a file", v)
			}
			gotType = true
		case unixfsFilesize:
			n.FileSize = v
			gotFilesize = true
		case unixfsBlocksizes:
			n.BlockSizes = append(n.BlockSizes, v)
		default:
			return errors.Errorf("unknown unixfs field %d", num)
		}
	}
	if !gotType {
		return errors.New("missing type")
	}
	if !gotFilesize {
		return errors.New("missing filesize")
	}
	return nil
}

func consumeBytesField(buf []byte) (protowire.Number, []byte, []byte, error) {
	num, typ, m := protowire.ConsumeTag(buf)
	if m < 0 {
		return 0, nil, nil, protowire.ParseError(m)
	}
	if typ != protowire.BytesType {
		return 0, nil, nil, errors.Errorf("field %d has wire type %d", num, typ)
	}
	buf = buf[m:]
	val, m := protowire.ConsumeBytes(buf)
	if m < 0 {
		return 0, nil, nil, protowire.ParseError(m)
	}
	return num, val, buf[m:], nil
}
