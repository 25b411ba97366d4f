package inline

import (
	"strings"
	"testing"

	"github.com/multiformats/go-multibase"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/chunker"
)

func TestRoundTrip(t *testing.T) {
	file := dagdelta.Sum(dagdelta.DagPB, []byte("some file"))

	cases := []chunker.Options{
		{Min: 1, Max: 28000, Avg: 500},
		chunker.DefaultOptions(),
		{Min: 1 << 20, Max: 1 << 30, Avg: 1 << 24},
	}
	for _, o := range cases {
		r := Ref{File: file, Options: o}

		buf, err := Encode(r)
		if err != nil {
			t.Fatal(err)
		}
		s, err := Inline(buf)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(s, "b") {
			t.Errorf("inline form %s lacks the base32 prefix", s)
		}
		if s != r.String() {
			t.Errorf("String() gives %s, want %s", r.String(), s)
		}

		got, err := DecodeInline(s)
		if err != nil {
			t.Fatal(err)
		}
		if !got.File.Equals(file) {
			t.Errorf("got file %s, want %s", got.File, file)
		}
		if got.Options != o {
			t.Errorf("got options %+v, want %+v", got.Options, o)
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	file := dagdelta.Sum(dagdelta.DagPB, []byte("some file"))
	cases := []Ref{
		{Options: chunker.DefaultOptions()},
		{File: file, Options: chunker.Options{Max: 2, Avg: 1}},
		{File: file, Options: chunker.Options{Min: 1, Avg: 1}},
		{File: file, Options: chunker.Options{Min: 1, Max: 2}},
	}
	for i, r := range cases {
		if _, err := Encode(r); err == nil {
			t.Errorf("case %d: no error", i)
		}
	}
}

func TestDecodeInlineErrors(t *testing.T) {
	file := dagdelta.Sum(dagdelta.DagPB, []byte("some file"))
	buf, err := Encode(Ref{File: file, Options: chunker.DefaultOptions()})
	if err != nil {
		t.Fatal(err)
	}

	base58, err := multibase.Encode(multibase.Base58BTC, append([]byte{0x88, 0x27}, buf...))
	if err != nil {
		t.Fatal(err)
	}
	wrongCode, err := multibase.Encode(multibase.Base32, append([]byte{0x89, 0x27}, buf...))
	if err != nil {
		t.Fatal(err)
	}
	short, err := multibase.Encode(multibase.Base32, []byte{0x88})
	if err != nil {
		t.Fatal(err)
	}
	noCID, err := multibase.Encode(multibase.Base32, []byte{0x88, 0x27, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range []string{"", base58, wrongCode, short, noCID, "b!!!"} {
		if _, err := DecodeInline(s); !errors.Is(err, dagdelta.ErrInvalidInlineEncoding) {
			t.Errorf("%q: got %v, want ErrInvalidInlineEncoding", s, err)
		}
	}
}

func TestCodePrefix(t *testing.T) {
	s, err := Inline(nil)
	if err != nil {
		t.Fatal(err)
	}
	_, buf, err := multibase.Decode(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 2 || buf[0] != 0x88 || buf[1] != 0x27 {
		t.Errorf("got prefix %x, want 8827", buf)
	}
}
