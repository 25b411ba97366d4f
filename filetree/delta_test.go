package filetree

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/archive"
	"github.com/bobg/dagdelta/dagpb"
	"github.com/bobg/dagdelta/store/mem"
	"github.com/bobg/dagdelta/testutil"
)

func buildPair(t *testing.T, buf1, buf2 []byte, opts ...Option) (*Tree, *Tree) {
	t.Helper()

	ctx := context.Background()
	t1, err := FromBytes(ctx, buf1, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t2, err := FromBytes(ctx, buf2, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return t1, t2
}

func TestDelta(t *testing.T) {
	var (
		buf1 = testutil.RandBytes(10, 1<<20)
		mid  = len(buf1) / 2
	)

	cases := []struct {
		name string
		buf2 []byte
	}{
		{"perturb", testutil.Perturb(buf1, mid)},
		{"insert", testutil.Insert(buf1, mid, []byte("some inserted text"))},
		{"delete", append(append([]byte{}, buf1[:mid]...), buf1[mid+100:]...)},
		{"append", append(append([]byte{}, buf1...), testutil.RandBytes(11, 5000)...)},
		{"unrelated", testutil.RandBytes(12, 300000)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ctx := context.Background()
			t1, t2 := buildPair(t, buf1, c.buf2)

			d, err := t1.Delta(ctx, t2)
			if err != nil {
				t.Fatal(err)
			}
			if !d.Source.Equals(t1.Root()) || !d.Dest.Equals(t2.Root()) {
				t.Errorf("delta has roots %s and %s, want %s and %s", d.Source, d.Dest, t1.Root(), t2.Root())
			}
			for c := range d.Blocks {
				if t1.Has(c) {
					t.Errorf("delta contains %s, which the source has", c)
				}
				if !t2.Has(c) {
					t.Errorf("delta contains %s, which the destination lacks", c)
				}
			}

			exported, err := d.Export()
			if err != nil {
				t.Fatal(err)
			}
			t.Logf("delta has %d blocks, %d bytes; exported size %d", d.Len(), d.Size(), len(exported))

			got, err := t1.Apply(ctx, exported)
			if err != nil {
				t.Fatal(err)
			}
			testutil.SameBytes(t, got, c.buf2)

			// Compressed archives apply too.
			got, err = Apply(ctx, t1, archive.Compress(exported))
			if err != nil {
				t.Fatal(err)
			}
			testutil.SameBytes(t, got, c.buf2)
		})
	}
}

func TestDeltaMinimal(t *testing.T) {
	var (
		ctx  = context.Background()
		buf1 = testutil.RandBytes(13, 1<<20)
		buf2 = testutil.Perturb(buf1, len(buf1)/2)
	)
	t1, t2 := buildPair(t, buf1, buf2)

	d, err := t1.Delta(ctx, t2)
	if err != nil {
		t.Fatal(err)
	}
	exported, err := d.Export()
	if err != nil {
		t.Fatal(err)
	}
	if len(exported) >= 100*1024 {
		t.Errorf("delta for a one-byte change is %d bytes", len(exported))
	}

	var nchunks int
	for c := range d.Blocks {
		if c.Type() == dagdelta.Raw {
			nchunks++
		}
	}
	if nchunks == 0 || nchunks > 3 {
		t.Errorf("delta has %d chunks, want 1 to 3", nchunks)
	}
}

func TestDeltaIdentity(t *testing.T) {
	ctx := context.Background()
	buf := testutil.RandBytes(14, 300000)
	t1, t2 := buildPair(t, buf, buf)

	for _, pair := range [][2]*Tree{{t1, t1}, {t1, t2}} {
		d, err := pair[0].Delta(ctx, pair[1])
		if err != nil {
			t.Fatal(err)
		}
		if d.Len() != 0 {
			t.Errorf("got %d blocks, want 0", d.Len())
		}
		exported, err := d.Export()
		if err != nil {
			t.Fatal(err)
		}
		got, err := pair[0].Apply(ctx, exported)
		if err != nil {
			t.Fatal(err)
		}
		testutil.SameBytes(t, got, buf)
	}
}

func TestApplyUnrelated(t *testing.T) {
	var (
		ctx  = context.Background()
		buf1 = testutil.RandBytes(15, 1<<20)
		buf2 = testutil.Perturb(buf1, 1000)
	)
	t1, t2 := buildPair(t, buf1, buf2)
	d, err := t1.Delta(ctx, t2)
	if err != nil {
		t.Fatal(err)
	}
	exported, err := d.Export()
	if err != nil {
		t.Fatal(err)
	}

	unrelated, err := FromBytes(ctx, testutil.RandBytes(16, 1<<20))
	if err != nil {
		t.Fatal(err)
	}
	got, err := unrelated.Apply(ctx, exported)
	if !errors.Is(err, dagdelta.ErrInsufficientOriginData) {
		t.Errorf("got %v, want ErrInsufficientOriginData", err)
	}
	if got != nil {
		t.Error("got output despite failure")
	}
}

func TestApplyEvictedSource(t *testing.T) {
	var (
		ctx  = context.Background()
		buf1 = testutil.RandBytes(18, 1<<20)
		buf2 = testutil.Perturb(buf1, 5000)
	)
	t1, t2 := buildPair(t, buf1, buf2)
	d, err := t1.Delta(ctx, t2)
	if err != nil {
		t.Fatal(err)
	}
	exported, err := d.Export()
	if err != nil {
		t.Fatal(err)
	}

	evicted, err := FromBytes(ctx, buf1, WithDropBytes())
	if err != nil {
		t.Fatal(err)
	}
	_, err = evicted.Apply(ctx, exported)
	if !errors.Is(err, dagdelta.ErrMissingBytes) {
		t.Errorf("got %v, want ErrMissingBytes", err)
	}
	if errors.Is(err, dagdelta.ErrInsufficientOriginData) {
		t.Errorf("evicted source reported as insufficient: %v", err)
	}

	rehydrated, err := evicted.Rehydrate(bytes.NewReader(buf1))
	if err != nil {
		t.Fatal(err)
	}
	got, err := rehydrated.Apply(ctx, exported)
	if err != nil {
		t.Fatal(err)
	}
	testutil.SameBytes(t, got, buf2)
}

func TestApplySizeMismatch(t *testing.T) {
	ctx := context.Background()

	chunk := dagpb.EncodeChunk([]byte("hello"))
	node, err := dagpb.EncodeNode([]dagpb.Link{{Size: 6, CID: chunk.CID}})
	if err != nil {
		t.Fatal(err)
	}
	a := &archive.Archive{Root: node.CID, Blocks: map[cid.Cid]dagdelta.Block{node.CID: node, chunk.CID: chunk}}

	source, err := FromBytes(ctx, []byte("other"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ApplyArchive(ctx, source, a); !errors.Is(err, dagdelta.ErrSizeMismatch) {
		t.Errorf("got %v, want ErrSizeMismatch", err)
	}
	if _, err := FromArchive(ctx, a); !errors.Is(err, dagdelta.ErrSizeMismatch) {
		t.Errorf("got %v, want ErrSizeMismatch", err)
	}
}

func TestApplyTree(t *testing.T) {
	var (
		ctx  = context.Background()
		buf1 = testutil.RandBytes(17, 500000)
		buf2 = testutil.Insert(buf1, 1234, []byte("inserted"))
		buf3 = testutil.Perturb(buf2, 400000)
	)
	t1, t2 := buildPair(t, buf1, buf2)
	d, err := t1.Delta(ctx, t2)
	if err != nil {
		t.Fatal(err)
	}

	applied, err := ApplyTree(ctx, t1, d.Archive())
	if err != nil {
		t.Fatal(err)
	}
	if !applied.Root().Equals(t2.Root()) {
		t.Errorf("got root %s, want %s", applied.Root(), t2.Root())
	}
	if applied.Len() != t2.Len() {
		t.Errorf("got %d blocks, want %d", applied.Len(), t2.Len())
	}

	// A tree reconstructed from a delta can be diffed like any other.
	t3, err := FromBytes(ctx, buf3)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := applied.Delta(ctx, t3)
	if err != nil {
		t.Fatal(err)
	}
	exported, err := d2.Export()
	if err != nil {
		t.Fatal(err)
	}
	got, err := applied.Apply(ctx, exported)
	if err != nil {
		t.Fatal(err)
	}
	testutil.SameBytes(t, got, buf3)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	buf := testutil.RandBytes(18, 300000)

	tree, err := FromBytes(ctx, buf)
	if err != nil {
		t.Fatal(err)
	}
	exported, err := tree.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	a, err := archive.Unmarshal(exported)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Blocks) != tree.Len() {
		t.Errorf("got %d blocks, want %d", len(a.Blocks), tree.Len())
	}

	again, err := FromArchive(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Root().Equals(tree.Root()) {
		t.Errorf("got root %s, want %s", again.Root(), tree.Root())
	}
	got, err := again.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	testutil.SameBytes(t, got, buf)

	// An empty tree can apply a full export.
	got, err = Apply(ctx, &Tree{}, exported)
	if err != nil {
		t.Fatal(err)
	}
	testutil.SameBytes(t, got, buf)

	dropped, err := FromBytes(ctx, buf, WithDropBytes())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dropped.Export(ctx); !errors.Is(err, dagdelta.ErrMissingBytes) {
		t.Errorf("got %v, want ErrMissingBytes", err)
	}
}

func TestDeltaEvicted(t *testing.T) {
	var (
		ctx  = context.Background()
		buf1 = testutil.RandBytes(19, 300000)
		buf2 = testutil.Perturb(buf1, 150000)
	)

	// An evicted source is fine: its chunks are never needed.
	source, err := FromBytes(ctx, buf1, WithDropBytes())
	if err != nil {
		t.Fatal(err)
	}
	dest, err := FromBytes(ctx, buf2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := source.Delta(ctx, dest); err != nil {
		t.Fatal(err)
	}

	// An evicted destination is not.
	dest, err = FromBytes(ctx, buf2, WithDropBytes())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := source.Delta(ctx, dest); !errors.Is(err, dagdelta.ErrUnresolvableBlock) {
		t.Errorf("got %v, want ErrUnresolvableBlock", err)
	}
}

func TestFetcher(t *testing.T) {
	var (
		ctx  = context.Background()
		buf1 = testutil.RandBytes(20, 300000)
		buf2 = testutil.Perturb(buf1, 150000)
		s    = mem.New()
	)

	full, err := FromBytes(ctx, buf1)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range full.Chunks() {
		b, err := c.Block()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.PutBlock(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	// A tree without its bytes can read them through a fetcher.
	source, err := FromBytes(ctx, buf1, WithDropBytes(), WithFetcher(s))
	if err != nil {
		t.Fatal(err)
	}
	got, err := source.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	testutil.SameBytes(t, got, buf1)

	// Applying a delta needs source chunks; the fetcher supplies them.
	dest, err := FromBytes(ctx, buf2)
	if err != nil {
		t.Fatal(err)
	}
	d, err := source.Delta(ctx, dest)
	if err != nil {
		t.Fatal(err)
	}
	exported, err := d.Export()
	if err != nil {
		t.Fatal(err)
	}
	got, err = source.Apply(ctx, exported)
	if err != nil {
		t.Fatal(err)
	}
	testutil.SameBytes(t, got, buf2)

	// A fetcher holding corrupt data is caught.
	bad := mem.New()
	for _, c := range full.Chunks() {
		if _, err := bad.PutBlock(ctx, dagdelta.Block{CID: c.CID, Data: []byte("wrong")}); err != nil {
			t.Fatal(err)
		}
	}
	source, err = FromBytes(ctx, buf1, WithDropBytes(), WithFetcher(bad))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := source.Read(ctx); !errors.Is(err, dagdelta.ErrCorruptBlock) {
		t.Errorf("got %v, want ErrCorruptBlock", err)
	}
}

func TestLoad(t *testing.T) {
	var (
		ctx = context.Background()
		buf = testutil.RandBytes(21, 300000)
		s   = mem.New()
	)

	orig, err := FromBytes(ctx, buf)
	if err != nil {
		t.Fatal(err)
	}
	blocks, err := orig.Blocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != orig.Len() {
		t.Fatalf("got %d blocks, want %d", len(blocks), orig.Len())
	}
	for i := 1; i < len(blocks); i++ {
		if !dagdelta.Less(blocks[i-1].CID, blocks[i].CID) {
			t.Fatalf("blocks out of order at position %d", i)
		}
	}
	if _, err := dagdelta.PutBlocks(ctx, s, blocks, 4); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(ctx, s, orig.Root(), WithDropBytes())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != orig.Size() || loaded.Len() != orig.Len() {
		t.Errorf("loaded tree has size %d and %d blocks, want %d and %d", loaded.Size(), loaded.Len(), orig.Size(), orig.Len())
	}
	for _, ch := range loaded.Chunks() {
		if ch.Resident() {
			t.Fatalf("chunk %s is resident", ch.CID)
		}
	}
	got, err := loaded.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	testutil.SameBytes(t, got, buf)

	if _, err := Load(ctx, mem.New(), orig.Root()); !errors.Is(err, dagdelta.ErrUnknownBlock) {
		t.Errorf("got %v loading from an empty store, want ErrUnknownBlock", err)
	}
}
