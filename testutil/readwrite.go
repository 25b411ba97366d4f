package testutil

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/dagpb"
)

// ReadWrite permits testing a Store implementation
// by writing some data to it as chunks beneath a tree node,
// then reading it back out to make sure it's the same.
// It also checks the store's ListCIDs and its handling of absent and duplicate blocks.
func ReadWrite(ctx context.Context, t *testing.T, s dagdelta.Store, data []byte) {
	t.Helper()

	var (
		blocks []dagdelta.Block
		links  []dagpb.Link
	)
	for pos := 0; pos < len(data); pos += 1000 {
		end := pos + 1000
		if end > len(data) {
			end = len(data)
		}
		b := dagpb.EncodeChunk(data[pos:end])
		blocks = append(blocks, b)
		links = append(links, dagpb.Link{Size: uint64(end - pos), CID: b.CID})
	}
	root, err := dagpb.EncodeNode(links)
	if err != nil {
		t.Fatal(err)
	}
	blocks = append(blocks, root)

	distinct := make(map[cid.Cid]struct{})
	for _, b := range blocks {
		distinct[b.CID] = struct{}{}
	}

	t1 := time.Now()
	added, err := dagdelta.PutBlocks(ctx, s, blocks, 8)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("wrote %d bytes in %s", len(data), time.Since(t1))
	if added != len(distinct) {
		t.Errorf("added %d blocks, want %d", added, len(distinct))
	}

	again, err := s.PutBlock(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if again {
		t.Error("second put of the same block added it again")
	}

	t2 := time.Now()
	rootBlock, err := dagdelta.Fetch(ctx, s, root.CID)
	if err != nil {
		t.Fatal(err)
	}
	node, err := dagpb.DecodeNode(rootBlock)
	if err != nil {
		t.Fatal(err)
	}
	buf := new(bytes.Buffer)
	for _, l := range node.Links {
		b, err := dagdelta.Fetch(ctx, s, l.CID)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(b.Data)
	}
	got := buf.Bytes()
	t.Logf("read %d bytes in %s", len(got), time.Since(t2))
	SameBytes(t, got, data)

	absent := dagdelta.Sum(dagdelta.Raw, []byte("this block is not in the store"))
	if _, err := s.FetchBlock(ctx, absent); !errors.Is(err, dagdelta.ErrNotFound) {
		t.Errorf("got %v fetching absent block, want ErrNotFound", err)
	}

	var listed []cid.Cid
	err = s.ListCIDs(ctx, cid.Undef, func(c cid.Cid) error {
		listed = append(listed, c)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != len(distinct) {
		t.Fatalf("listed %d CIDs, want %d", len(listed), len(distinct))
	}
	for i, c := range listed {
		if _, ok := distinct[c]; !ok {
			t.Errorf("listed unknown CID %s", c)
		}
		if i > 0 && !dagdelta.Less(listed[i-1], c) {
			t.Errorf("listed CIDs out of order at position %d", i)
		}
	}

	mid := len(listed) / 2
	var rest int
	err = s.ListCIDs(ctx, listed[mid], func(c cid.Cid) error {
		if !dagdelta.Less(listed[mid], c) {
			t.Errorf("listing after %s produced %s", listed[mid], c)
		}
		rest++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if rest != len(listed)-mid-1 {
		t.Errorf("listed %d CIDs after the midpoint, want %d", rest, len(listed)-mid-1)
	}

	stop := errors.New("stop")
	err = s.ListCIDs(ctx, cid.Undef, func(cid.Cid) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("got %v from ListCIDs, want the callback's error", err)
	}
}
