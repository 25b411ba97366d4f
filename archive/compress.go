package archive

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// zstdMagic begins every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress wraps a serialized archive in a zstd frame.
func Compress(buf []byte) []byte {
	return zstdEncoder.EncodeAll(buf, make([]byte, 0, len(buf)/2))
}

// IsCompressed tells whether buf begins with a zstd frame.
func IsCompressed(buf []byte) bool {
	return bytes.HasPrefix(buf, zstdMagic)
}

// Decompress removes the zstd frame from a compressed archive.
func Decompress(buf []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(buf, nil)
	return out, errors.Wrap(err, "decompressing archive")
}

// Open parses a serialized archive that may or may not be compressed.
// A valid uncompressed archive never begins with the zstd magic number,
// which would make its header a CBOR map of 21 entries.
func Open(buf []byte) (*Archive, error) {
	if IsCompressed(buf) {
		var err error
		if buf, err = Decompress(buf); err != nil {
			return nil, err
		}
	}
	return Unmarshal(buf)
}
