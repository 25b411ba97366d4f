package dagpb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bobg/dagdelta"
)

func testLinks() []Link {
	var links []Link
	for _, s := range []string{"foo", "bar", "baz quux"} {
		b := EncodeChunk([]byte(s))
		links = append(links, Link{Size: uint64(len(s)), CID: b.CID})
	}
	return links
}

func TestEncodeChunk(t *testing.T) {
	b := EncodeChunk([]byte("hello"))
	if b.Codec() != dagdelta.Raw {
		t.Errorf("got codec 0x%x, want raw", b.Codec())
	}
	if err := b.Verify(); err != nil {
		t.Error(err)
	}
}

func TestNodeRoundTrip(t *testing.T) {
	links := testLinks()

	b, err := EncodeNode(links)
	if err != nil {
		t.Fatal(err)
	}
	if b.Codec() != dagdelta.DagPB {
		t.Errorf("got codec 0x%x, want dag-pb", b.Codec())
	}

	n, err := DecodeNode(b)
	if err != nil {
		t.Fatal(err)
	}
	if n.Size() != 14 {
		t.Errorf("got size %d, want 14", n.Size())
	}
	if diff := cmp.Diff(links, n.Links, cmp.Comparer(func(a, b cid.Cid) bool { return a.Equals(b) })); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{3, 3, 8}, n.BlockSizes); diff != "" {
		t.Errorf("blocksizes mismatch (-want +got):\n%s", diff)
	}

	// Encoding is deterministic.
	b2, err := EncodeNode(n.Links)
	if err != nil {
		t.Fatal(err)
	}
	if !b2.CID.Equals(b.CID) {
		t.Errorf("re-encoding produced %s, want %s", b2.CID, b.CID)
	}
}

func TestEncodeNodeErrors(t *testing.T) {
	if _, err := EncodeNode(nil); err == nil {
		t.Error("encoded a node with no links")
	}
	if _, err := EncodeNode([]Link{{Size: 1}}); err == nil {
		t.Error("encoded a link with no CID")
	}
}

func TestDecodeNodeErrors(t *testing.T) {
	links := testLinks()
	good, err := EncodeNode(links)
	if err != nil {
		t.Fatal(err)
	}

	link := encodeLink(links[0])

	unixfs := func(fields ...uint64) []byte {
		var buf []byte
		for i := 0; i < len(fields); i += 2 {
			buf = protowire.AppendTag(buf, protowire.Number(fields[i]), protowire.VarintType)
			buf = protowire.AppendVarint(buf, fields[i+1])
		}
		return buf
	}
	node := func(data []byte, links ...[]byte) []byte {
		var buf []byte
		for _, l := range links {
			buf = protowire.AppendTag(buf, nodeLinks, protowire.BytesType)
			buf = protowire.AppendBytes(buf, l)
		}
		if data != nil {
			buf = protowire.AppendTag(buf, nodeData, protowire.BytesType)
			buf = protowire.AppendBytes(buf, data)
		}
		return buf
	}

	okData := unixfs(1, 2, 3, 3, 4, 3)

	cases := []struct {
		name string
		data []byte
	}{
		{name: "empty"},
		{name: "truncated", data: good.Data[:len(good.Data)-1]},
		{name: "no data", data: node(nil, link)},
		{name: "no links", data: node(unixfs(1, 2, 3, 0))},
		{name: "data before links", data: append(node(okData), node(nil, link)...)},
		{name: "directory", data: node(unixfs(1, 1, 3, 3, 4, 3), link)},
		{name: "no type", data: node(unixfs(3, 3, 4, 3), link)},
		{name: "no filesize", data: node(unixfs(1, 2, 4, 3), link)},
		{name: "wrong filesize", data: node(unixfs(1, 2, 3, 4, 4, 3), link)},
		{name: "wrong blocksize", data: node(unixfs(1, 2, 3, 4, 4, 4), link)},
		{name: "extra blocksize", data: node(unixfs(1, 2, 3, 6, 4, 3, 4, 3), link)},
		{name: "unknown unixfs field", data: node(unixfs(1, 2, 3, 3, 4, 3, 7, 1), link)},
		{name: "duplicate type", data: node(unixfs(1, 2, 1, 2, 3, 3, 4, 3), link)},
		{
			name: "inline data",
			data: node(protowire.AppendBytes(protowire.AppendTag(unixfs(1, 2), unixfsData, protowire.BytesType), []byte("foo")), link),
		},
		{name: "unknown node field", data: append(node(okData, link), protowire.AppendVarint(protowire.AppendTag(nil, 5, protowire.VarintType), 1)...)},
		{name: "link without hash", data: node(okData, unixfs(3, 3))},
		{name: "link without tsize", data: node(okData, link[:len(link)-2])},
		{name: "link bad hash", data: node(okData, protowire.AppendBytes(protowire.AppendTag(nil, linkHash, protowire.BytesType), []byte{0xff}))},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := dagdelta.NewBlock(dagdelta.DagPB, c.data)
			if _, err := DecodeNode(b); !errors.Is(err, dagdelta.ErrMalformedNode) {
				t.Errorf("got %v, want ErrMalformedNode", err)
			}
		})
	}

	t.Run("raw", func(t *testing.T) {
		b := dagdelta.NewBlock(dagdelta.Raw, good.Data)
		if _, err := DecodeNode(b); !errors.Is(err, dagdelta.ErrMalformedNode) {
			t.Errorf("got %v, want ErrMalformedNode", err)
		}
	})
}
