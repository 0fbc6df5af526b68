package store

import (
	"fmt"

	syncpool "github.com/mostynb/zstdpool-syncpool"

	"github.com/linecache/linecached/utils/zstdpool"
)

// maybeCompress returns the bytes that should actually be retained for
// value: compressed, if compression is enabled and value is at least
// compressionThreshold bytes and compression actually shrinks it; the
// original bytes (copied, since the caller owns the slice they passed in)
// otherwise.
func (s *Store) maybeCompress(value []byte) (stored []byte, compressed bool) {
	if s.compressionThreshold <= 0 || int64(len(value)) < s.compressionThreshold {
		return append([]byte(nil), value...), false
	}

	pool := zstdpool.GetEncoderPool()
	enc, ok := pool.Get().(*syncpool.EncoderWrapper)
	if !ok {
		return append([]byte(nil), value...), false
	}
	defer pool.Put(enc)

	out := enc.EncodeAll(value, nil)
	if len(out) >= len(value) {
		// Compression didn't pay off; keep the original bytes.
		return append([]byte(nil), value...), false
	}
	return out, true
}

// maybeDecompress returns the caller-facing bytes for a stored value,
// decompressing if necessary. The returned slice is always a fresh copy:
// store entries are exclusively owned by the Store.
func (s *Store) maybeDecompress(value []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return append([]byte(nil), value...), nil
	}

	pool := zstdpool.GetDecoderPool()
	dec, ok := pool.Get().(*syncpool.DecoderWrapper)
	if !ok {
		return nil, fmt.Errorf("store: zstd decoder pool exhausted")
	}
	defer pool.Put(dec)

	out, err := dec.DecodeAll(value, nil)
	if err != nil {
		return nil, fmt.Errorf("store: zstd decode failed: %w", err)
	}
	return out, nil
}
