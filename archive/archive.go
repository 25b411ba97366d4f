// Package archive serializes a root CID and a set of blocks.
//
// The layout is that of a CARv1 file:
// a length-prefixed dag-cbor header,
// then a sequence of length-prefixed entries,
// each a CID followed by the block's bytes.
// Entries are written in ascending CID order,
// so the same logical archive always serializes to the same bytes.
//
// Besides the standard "roots" and "version" fields,
// the header records the number of entries ("blocks")
// and optionally the CID of the tree a delta applies to ("base").
// The entry count lets a reader detect truncation at an entry boundary.
// Archives without it, such as plain CARv1 files, are still readable:
// their entries run to the end of the input,
// so truncation at an entry boundary goes unnoticed.
package archive

import (
	"bytes"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
)

// Version is the CAR version number written in archive headers.
const Version = 1

// cidTag is the CBOR tag for a CID in dag-cbor.
const cidTag = 42

// Archive is a root CID plus a set of blocks.
type Archive struct {
	Root cid.Cid

	// Base is the root of the tree that supplies blocks missing from this archive,
	// or cid.Undef if the archive is self-contained.
	Base cid.Cid

	Blocks map[cid.Cid]dagdelta.Block
}

type header struct {
	Roots   []cbor.Tag `cbor:"roots"`
	Version uint64     `cbor:"version"`
	Blocks  *uint64    `cbor:"blocks"`
	Base    *cbor.Tag  `cbor:"base,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Sort = cbor.SortLengthFirst // as dag-cbor requires
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("archive: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("archive: CBOR decoder initialization failed: " + err.Error())
	}
}

// CIDs returns the CIDs of the archive's blocks in ascending order.
func (a *Archive) CIDs() []cid.Cid {
	result := make([]cid.Cid, 0, len(a.Blocks))
	for c := range a.Blocks {
		result = append(result, c)
	}
	dagdelta.SortCIDs(result)
	return result
}

// Size is the total size of the archive's blocks.
func (a *Archive) Size() int {
	var size int
	for _, b := range a.Blocks {
		size += len(b.Data)
	}
	return size
}

// Marshal serializes the archive.
func (a *Archive) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := a.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo writes the serialized archive to w.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	if !a.Root.Defined() {
		return 0, errors.New("archive has no root")
	}

	n := uint64(len(a.Blocks))
	h := header{
		Roots:   []cbor.Tag{cidToTag(a.Root)},
		Version: Version,
		Blocks:  &n,
	}
	if a.Base.Defined() {
		t := cidToTag(a.Base)
		h.Base = &t
	}
	hbytes, err := encMode.Marshal(h)
	if err != nil {
		return 0, errors.Wrap(err, "encoding header")
	}

	cw := &countingWriter{w: w}
	if err := writeSection(cw, hbytes); err != nil {
		return cw.n, errors.Wrap(err, "writing header")
	}

	for _, c := range a.CIDs() {
		b := a.Blocks[c]
		if !b.CID.Equals(c) {
			return cw.n, errors.Errorf("block %s is stored under %s", b.CID, c)
		}
		if err := writeSection(cw, c.Bytes(), b.Data); err != nil {
			return cw.n, errors.Wrapf(err, "writing block %s", c)
		}
	}

	return cw.n, nil
}

func writeSection(w io.Writer, parts ...[]byte) error {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	if _, err := w.Write(varint.ToUvarint(uint64(n))); err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal parses a serialized archive.
// Entries may appear in any order.
//
// It fails with dagdelta.ErrTruncatedArchive if buf ends early,
// dagdelta.ErrUnknownBlockTag if an entry's codec is neither raw nor dag-pb,
// dagdelta.ErrCorruptBlock if an entry's bytes do not match its CID,
// and dagdelta.ErrMalformedArchive for any other defect,
// including duplicate entries and trailing bytes.
//
// Unmarshal does not check that the blocks form a complete DAG.
func Unmarshal(buf []byte) (*Archive, error) {
	hbytes, buf, err := readSection(buf)
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	h, err := decodeHeader(hbytes)
	if err != nil {
		return nil, err
	}

	hint := h.blocks
	if hint > uint64(len(buf)) {
		hint = uint64(len(buf))
	}
	a := &Archive{
		Root:   h.root,
		Base:   h.base,
		Blocks: make(map[cid.Cid]dagdelta.Block, hint),
	}

	for i := uint64(0); h.more(i, buf); i++ {
		var entry []byte
		entry, buf, err = readSection(buf)
		if err != nil {
			return nil, errors.Wrapf(err, "reading entry %d", i)
		}
		n, c, err := cid.CidFromBytes(entry)
		if err != nil {
			return nil, errors.Wrapf(dagdelta.ErrMalformedArchive, "entry %d: parsing CID: %s", i, err)
		}
		if err := dagdelta.CheckCodec(c); err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		if _, ok := a.Blocks[c]; ok {
			return nil, errors.Wrapf(dagdelta.ErrMalformedArchive, "duplicate entry for %s", c)
		}
		b, err := dagdelta.VerifiedBlock(c, entry[n:])
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		a.Blocks[c] = b
	}

	if len(buf) > 0 {
		return nil, errors.Wrapf(dagdelta.ErrMalformedArchive, "%d bytes after last entry", len(buf))
	}
	return a, nil
}

// Read parses a serialized archive from r.
// See Unmarshal.
func Read(r io.Reader) (*Archive, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading archive")
	}
	return Unmarshal(buf)
}

func readSection(buf []byte) (section, rest []byte, err error) {
	size, n, err := varint.FromUvarint(buf)
	if errors.Is(err, varint.ErrUnderflow) {
		return nil, nil, dagdelta.ErrTruncatedArchive
	}
	if err != nil {
		return nil, nil, errors.Wrapf(dagdelta.ErrMalformedArchive, "section length: %s", err)
	}
	if size == 0 {
		return nil, nil, errors.Wrap(dagdelta.ErrMalformedArchive, "empty section")
	}
	buf = buf[n:]
	if size > uint64(len(buf)) {
		return nil, nil, errors.Wrapf(dagdelta.ErrTruncatedArchive, "section length %d, %d bytes remain", size, len(buf))
	}
	return buf[:size], buf[size:], nil
}

type decodedHeader struct {
	root, base cid.Cid
	blocks     uint64
	counted    bool
}

// more tells whether entry i is expected, given the unread input.
func (h decodedHeader) more(i uint64, buf []byte) bool {
	if h.counted {
		return i < h.blocks
	}
	return len(buf) > 0
}

func decodeHeader(hbytes []byte) (decodedHeader, error) {
	var h header
	if err := decMode.Unmarshal(hbytes, &h); err != nil {
		return decodedHeader{}, errors.Wrapf(dagdelta.ErrMalformedArchive, "decoding header: %s", err)
	}
	if h.Version != Version {
		return decodedHeader{}, errors.Wrapf(dagdelta.ErrMalformedArchive, "version %d, want %d", h.Version, Version)
	}
	if len(h.Roots) != 1 {
		return decodedHeader{}, errors.Wrapf(dagdelta.ErrMalformedArchive, "%d roots, want 1", len(h.Roots))
	}

	var result decodedHeader
	if h.Blocks != nil {
		result.blocks, result.counted = *h.Blocks, true
	}

	var err error
	if result.root, err = tagToCID(h.Roots[0]); err != nil {
		return decodedHeader{}, errors.Wrap(err, "root")
	}
	if h.Base != nil {
		if result.base, err = tagToCID(*h.Base); err != nil {
			return decodedHeader{}, errors.Wrap(err, "base")
		}
	}
	return result, nil
}

// cidToTag produces the dag-cbor form of a CID:
// a tag-42 byte string holding a zero byte and the binary CID.
func cidToTag(c cid.Cid) cbor.Tag {
	return cbor.Tag{
		Number:  cidTag,
		Content: append([]byte{0}, c.Bytes()...),
	}
}

func tagToCID(t cbor.Tag) (cid.Cid, error) {
	if t.Number != cidTag {
		return cid.Undef, errors.Wrapf(dagdelta.ErrMalformedArchive, "tag %d, want %d", t.Number, cidTag)
	}
	b, ok := t.Content.([]byte)
	if !ok || len(b) < 2 || b[0] != 0 {
		return cid.Undef, errors.Wrap(dagdelta.ErrMalformedArchive, "bad CID encoding")
	}
	c, err := cid.Cast(b[1:])
	if err != nil {
		return cid.Undef, errors.Wrapf(dagdelta.ErrMalformedArchive, "parsing CID: %s", err)
	}
	return c, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n += int64(n)
	return n, err
}
