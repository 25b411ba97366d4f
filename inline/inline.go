// Package inline encodes a file reference together with the chunking parameters
// needed to reproduce its tree.
//
// The binary form is three varints (min, max, and average chunk size)
// followed by the binary CID of the file's root.
// The printable form prefixes that with the varint Code
// and encodes the result as base32 multibase.
package inline

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/chunker"
)

// Code identifies a printable reference.
const Code = 5000

// Name is the name associated with Code.
const Name = "web-delta"

// Ref is a file root plus the chunking parameters that produced it.
type Ref struct {
	File    cid.Cid
	Options chunker.Options
}

// Encode produces the binary form of r.
// All chunk sizes must be positive and the file CID must be defined.
func Encode(r Ref) ([]byte, error) {
	if r.Options.Min <= 0 || r.Options.Max <= 0 || r.Options.Avg <= 0 {
		return nil, errors.Errorf("chunk sizes must be positive (min %d, max %d, avg %d)", r.Options.Min, r.Options.Max, r.Options.Avg)
	}
	if !r.File.Defined() {
		return nil, errors.New("missing file CID")
	}

	var buf []byte
	for _, n := range []int{r.Options.Min, r.Options.Max, r.Options.Avg} {
		buf = append(buf, varint.ToUvarint(uint64(n))...)
	}
	return append(buf, r.File.Bytes()...), nil
}

// Decode parses the binary form of a Ref.
// It fails with dagdelta.ErrInvalidInlineEncoding on malformed input.
func Decode(buf []byte) (Ref, error) {
	var sizes [3]int
	for i := range sizes {
		n, m, err := varint.FromUvarint(buf)
		if err != nil {
			return Ref{}, errors.Wrapf(dagdelta.ErrInvalidInlineEncoding, "chunk size %d: %s", i, err)
		}
		if n == 0 || n > uint64(maxInt) {
			return Ref{}, errors.Wrapf(dagdelta.ErrInvalidInlineEncoding, "chunk size %d is %d", i, n)
		}
		sizes[i] = int(n)
		buf = buf[m:]
	}
	c, err := cid.Cast(buf)
	if err != nil {
		return Ref{}, errors.Wrapf(dagdelta.ErrInvalidInlineEncoding, "file CID: %s", err)
	}
	return Ref{
		File:    c,
		Options: chunker.Options{Min: sizes[0], Max: sizes[1], Avg: sizes[2]},
	}, nil
}

const maxInt = int(^uint(0) >> 1)

// Inline produces the printable form of the binary reference in buf.
func Inline(buf []byte) (string, error) {
	return multibase.Encode(multibase.Base32, append(varint.ToUvarint(Code), buf...))
}

// DecodeInline parses a printable reference produced by Inline.
// It fails with dagdelta.ErrInvalidInlineEncoding
// if s is not base32 multibase ("b" prefix)
// or does not begin with Code.
func DecodeInline(s string) (Ref, error) {
	if len(s) == 0 || s[0] != byte(multibase.Base32) {
		return Ref{}, errors.Wrap(dagdelta.ErrInvalidInlineEncoding, "not base32 multibase")
	}
	_, buf, err := multibase.Decode(s)
	if err != nil {
		return Ref{}, errors.Wrapf(dagdelta.ErrInvalidInlineEncoding, "%s", err)
	}
	prefix := varint.ToUvarint(Code)
	if len(buf) < len(prefix) || buf[0] != prefix[0] || buf[1] != prefix[1] {
		return Ref{}, errors.Wrap(dagdelta.ErrInvalidInlineEncoding, "wrong code")
	}
	return Decode(buf[len(prefix):])
}

// String produces the printable form of r.
func (r Ref) String() string {
	buf, err := Encode(r)
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	s, err := Inline(buf)
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return s
}
