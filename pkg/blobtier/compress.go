package blobtier

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// minCompressSize is the size below which cache files are stored raw.
const minCompressSize = 128

type compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCompressor() (*compressor, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &compressor{encoder: encoder, decoder: decoder}, nil
}

// compress returns data unchanged when compression does not pay off.
func (c *compressor) compress(data []byte) []byte {
	if c == nil || len(data) < minCompressSize {
		return data
	}
	out := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(out) >= len(data) {
		return data
	}
	return out
}

// decompress accepts both compressed and raw files.
func (c *compressor) decompress(data []byte) ([]byte, error) {
	if c == nil || !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	return c.decoder.DecodeAll(data, nil)
}

func (c *compressor) close() {
	if c == nil {
		return
	}
	c.encoder.Close()
	c.decoder.Close()
}
