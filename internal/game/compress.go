package game

import (
	"github.com/klauspost/compress/zstd"
)

// Save and map payloads are compressed at rest. The encoder and decoder are
// stateless in EncodeAll/DecodeAll mode and safe for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compress(payload []byte) []byte {
	return zstdEncoder.EncodeAll(payload, nil)
}

func decompress(payload []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(payload, nil)
}
