package codec

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the 4-byte little-endian zstd frame magic number. It gives
// Valid a cheap, reliable check for "is this payload a compressed block"
// without attempting a full decode, which is what the dump spooler's plain
// format needs (spec §3: "if the payload passes the compression codec's
// validity check").
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Zstd is a Codec backed by klauspost/compress/zstd. The zero value is not
// usable; construct with NewZstd.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd builds a reusable zstd Codec. The encoder and decoder are each
// safe for concurrent use per the klauspost/compress/zstd contract.
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (z *Zstd) Compress(p []byte) ([]byte, error) {
	return z.enc.EncodeAll(p, make([]byte, 0, len(p))), nil
}

func (z *Zstd) Decompress(p []byte) ([]byte, bool) {
	if !z.Valid(p) {
		return nil, false
	}
	out, err := z.dec.DecodeAll(p, nil)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (z *Zstd) Valid(p []byte) bool {
	return bytes.HasPrefix(p, zstdMagic)
}

// Close releases the decoder's background goroutines. The encoder has no
// resources to release beyond what Compress itself allocates.
func (z *Zstd) Close() {
	z.dec.Close()
}
