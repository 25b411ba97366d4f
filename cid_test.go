package dagdelta

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

func TestSum(t *testing.T) {
	a := Sum(Raw, []byte("hello"))
	b := Sum(Raw, []byte("hello"))
	if !a.Equals(b) {
		t.Errorf("same bytes produced %s and %s", a, b)
	}
	if a.Type() != Raw {
		t.Errorf("got codec 0x%x, want 0x%x", a.Type(), Raw)
	}

	c := Sum(DagPB, []byte("hello"))
	if a.Equals(c) {
		t.Error("codec does not distinguish CIDs")
	}
	if a.Prefix().Version != 1 {
		t.Errorf("got CID version %d, want 1", a.Prefix().Version)
	}
}

func TestLess(t *testing.T) {
	var cids []cid.Cid
	for i := 0; i < 100; i++ {
		cids = append(cids, Sum(Raw, []byte(fmt.Sprintf("block %d", i))))
	}
	SortCIDs(cids)
	for i := 1; i < len(cids); i++ {
		if bytes.Compare(cids[i-1].Bytes(), cids[i].Bytes()) >= 0 {
			t.Fatalf("CIDs %d and %d out of order", i-1, i)
		}
		if !Less(cids[i-1], cids[i]) || Less(cids[i], cids[i-1]) {
			t.Fatalf("Less disagrees with byte order at %d", i)
		}
	}
}

func TestIsBoundary(t *testing.T) {
	var found, total int
	for i := 0; found < 3; i++ {
		c := Sum(Raw, []byte(fmt.Sprintf("chunk %d", i)))
		b := c.Bytes()
		want := b[len(b)-1] == 0
		if got := IsBoundary(c); got != want {
			t.Fatalf("IsBoundary(%s) = %v, want %v", c, got, want)
		}
		if want {
			found++
		}
		total++
	}
	t.Logf("found %d boundaries in %d CIDs", found, total)
}

func TestCheckCodec(t *testing.T) {
	if err := CheckCodec(Sum(Raw, nil)); err != nil {
		t.Error(err)
	}
	if err := CheckCodec(Sum(DagPB, nil)); err != nil {
		t.Error(err)
	}
	err := CheckCodec(Sum(cid.DagCBOR, nil))
	if !errors.Is(err, ErrUnknownBlockTag) {
		t.Errorf("got %v, want ErrUnknownBlockTag", err)
	}
}

func TestVerify(t *testing.T) {
	b := NewBlock(Raw, []byte("some content"))
	if err := b.Verify(); err != nil {
		t.Fatal(err)
	}
	b.Data = []byte("other content")
	if err := b.Verify(); !errors.Is(err, ErrCorruptBlock) {
		t.Errorf("got %v, want ErrCorruptBlock", err)
	}
	if _, err := VerifiedBlock(cid.Undef, nil); !errors.Is(err, ErrCorruptBlock) {
		t.Errorf("got %v for undefined CID, want ErrCorruptBlock", err)
	}
}
