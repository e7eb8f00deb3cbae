package storage

import (
	"fmt"

	"github.com/annel0/landblock/internal/world/entity"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec кодирует снимки в msgpack и сжимает их zstd.
// EncodeAll/DecodeAll безопасны для одновременного вызова.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode сериализует снимок
func (c *Codec) Encode(b entity.Biota) ([]byte, error) {
	raw, err := msgpack.Marshal(&b)
	if err != nil {
		return nil, fmt.Errorf("encode biota %s: %w", b.Guid, err)
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode восстанавливает снимок
func (c *Codec) Decode(data []byte) (entity.Biota, error) {
	var b entity.Biota
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return b, fmt.Errorf("decompress biota: %w", err)
	}
	if err := msgpack.Unmarshal(raw, &b); err != nil {
		return b, fmt.Errorf("decode biota: %w", err)
	}
	return b, nil
}

func (c *Codec) Close() {
	c.dec.Close()
	_ = c.enc.Close()
}
