package wire

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// sharedEncoder/sharedDecoder are process-wide zstd codecs: the library
// recommends reusing them across calls rather than allocating per
// packet. They hold no packet state themselves, unlike the Registry.
var (
	encoderOnce sync.Once
	sharedEnc   *zstd.Encoder

	decoderOnce sync.Once
	sharedDec   *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(fmt.Sprintf("wire: zstd encoder init: %v", err))
		}
		sharedEnc = enc
	})
	return sharedEnc
}

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("wire: zstd decoder init: %v", err))
		}
		sharedDec = dec
	})
	return sharedDec
}

func compressTLVs(b []byte) []byte {
	return zstdEncoder().EncodeAll(b, nil)
}

func decompressTLVs(b []byte) ([]byte, error) {
	out, err := zstdDecoder().DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd inflate: %v", ErrInvalidPacket, err)
	}
	return out, nil
}
