// Package chunker defines the contract for content-defined chunking
// and supplies a default implementation based on hashsplitting.
// See github.com/bobg/hashsplit for more information.
package chunker

import (
	"math/bits"

	"github.com/bobg/hashsplit"
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
)

// Func computes chunk boundaries in buf.
//
// The result is a list of offsets into buf.
// Chunk i is buf[offsets[i]:offsets[i+1]].
// Offsets must be strictly increasing,
// must begin at 0 and end at len(buf),
// and consecutive offsets must be at least min and at most max apart,
// except that the final chunk may be shorter than min.
// A Func is expected to produce chunks averaging around avg bytes.
type Func func(buf []byte, min, max, avg int) ([]int, error)

// Options holds chunk-size parameters.
type Options struct {
	Min, Max, Avg int
}

// DefaultAvg is the default average chunk size.
const DefaultAvg = 16384

// DefaultOptions produces the default chunk-size parameters.
func DefaultOptions() Options {
	return Options{
		Min: DefaultAvg / 4,
		Max: DefaultAvg * 8,
		Avg: DefaultAvg,
	}
}

// Validate checks that o describes a usable set of chunk sizes.
func (o Options) Validate() error {
	if o.Min <= 0 || o.Avg <= 0 || o.Max <= 0 {
		return errors.Errorf("chunk sizes must be positive (min %d, avg %d, max %d)", o.Min, o.Avg, o.Max)
	}
	if o.Min > o.Avg || o.Avg > o.Max {
		return errors.Errorf("need min <= avg <= max (min %d, avg %d, max %d)", o.Min, o.Avg, o.Max)
	}
	if o.Max < 2*o.Min {
		return errors.Errorf("max %d must be at least twice min %d", o.Max, o.Min)
	}
	return nil
}

// Hashsplit is the default Func.
// It splits buf where a rolling checksum has log2(avg) trailing zero bits,
// never before min bytes,
// and cuts any longer run at max bytes.
func Hashsplit(buf []byte, min, max, avg int) ([]int, error) {
	if err := (Options{Min: min, Max: max, Avg: avg}).Validate(); err != nil {
		return nil, err
	}

	var (
		offsets = []int{0}
		pos     int
	)
	spl := hashsplit.NewSplitter(func(chunk []byte, _ uint) error {
		if len(chunk) == 0 {
			return nil
		}
		pos += len(chunk)
		if pos-offsets[len(offsets)-1] < min {
			// Runt; let it merge with the next chunk.
			return nil
		}
		offsets = cut(offsets, pos, min, max)
		return nil
	})
	spl.MinSize = min
	spl.SplitBits = splitBits(avg)

	if _, err := spl.Write(buf); err != nil {
		return nil, errors.Wrap(err, "splitting")
	}
	if err := spl.Close(); err != nil {
		return nil, errors.Wrap(err, "closing splitter")
	}
	if pos > len(buf) {
		return nil, errors.Errorf("splitter produced %d bytes from %d", pos, len(buf))
	}
	if last := offsets[len(offsets)-1]; last < len(buf) {
		offsets = cut(offsets, len(buf), min, max)
	}
	return offsets, nil
}

// Fixed is a Func that cuts buf every avg bytes, ignoring content.
// It is useful mainly for testing.
func Fixed(buf []byte, min, max, avg int) ([]int, error) {
	if err := (Options{Min: min, Max: max, Avg: avg}).Validate(); err != nil {
		return nil, err
	}
	offsets := []int{0}
	for pos := avg; pos < len(buf); pos += avg {
		offsets = append(offsets, pos)
	}
	if len(buf) > 0 {
		offsets = append(offsets, len(buf))
	}
	return offsets, nil
}

// cut appends end to offsets,
// first inserting intermediate offsets so that no chunk exceeds max
// and no chunk before the last is shorter than min.
func cut(offsets []int, end, min, max int) []int {
	start := offsets[len(offsets)-1]
	for end-start > max {
		next := start + max
		if end-next < min {
			next = end - min
		}
		offsets = append(offsets, next)
		start = next
	}
	return append(offsets, end)
}

func splitBits(avg int) uint {
	n := bits.Len(uint(avg))
	if n < 2 {
		return 1
	}
	return uint(n - 1)
}

// Validate checks that offsets satisfy the Func contract for a buffer of length n.
// It returns dagdelta.ErrEmptyInput if there are no chunks,
// and an error wrapping dagdelta.ErrChunkingFailed for any other violation.
func Validate(offsets []int, n int, o Options) error {
	if len(offsets) < 2 {
		return dagdelta.ErrEmptyInput
	}
	if offsets[0] != 0 {
		return errors.Wrapf(dagdelta.ErrChunkingFailed, "first offset is %d, want 0", offsets[0])
	}
	if last := offsets[len(offsets)-1]; last != n {
		return errors.Wrapf(dagdelta.ErrChunkingFailed, "last offset is %d, want %d", last, n)
	}
	for i := 1; i < len(offsets); i++ {
		size := offsets[i] - offsets[i-1]
		if size <= 0 {
			return errors.Wrapf(dagdelta.ErrChunkingFailed, "offset %d (%d) does not follow offset %d (%d)", i, offsets[i], i-1, offsets[i-1])
		}
		if size > o.Max {
			return errors.Wrapf(dagdelta.ErrChunkingFailed, "chunk %d has size %d, above max %d", i-1, size, o.Max)
		}
		if size < o.Min && i < len(offsets)-1 {
			return errors.Wrapf(dagdelta.ErrChunkingFailed, "chunk %d has size %d, below min %d", i-1, size, o.Min)
		}
	}
	return nil
}
