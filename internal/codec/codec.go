// Package codec provides the compression transform the relay loop applies
// to frame payloads when forwarding across a compress/decompress pipeline
// role (spec §4.4). The default Codec is Identity; any other Codec can be
// injected at mode-construction time without the relay loop changing.
package codec

// Codec compresses and decompresses frame payloads in place of the fixed,
// compile-time toggle the original program used.
type Codec interface {
	// Compress returns the compressed form of p.
	Compress(p []byte) ([]byte, error)

	// Decompress returns the decompressed form of p if p is a valid
	// compressed block under this codec, and ok=false otherwise. A
	// false ok is not an error: callers fall back to the raw payload.
	Decompress(p []byte) (out []byte, ok bool)

	// Valid reports whether p looks like a block this codec produced.
	// The dump spooler's plain-text writer uses this to decide whether
	// to write the decompressed bytes or the raw payload (spec §3).
	Valid(p []byte) bool
}

// Identity is the no-op Codec: Compress returns the input unchanged,
// Decompress always reports ok=false, and Valid is always false, so callers
// always take the "write raw bytes" path. It is the default codec for every
// mode.
type Identity struct{}

func (Identity) Compress(p []byte) ([]byte, error) { return p, nil }

func (Identity) Decompress(p []byte) ([]byte, bool) { return nil, false }

func (Identity) Valid([]byte) bool { return false }
