package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType identifies a compression algorithm in the payload header.
type CompressionType uint8

const (
	// CompressionNone stores the serialized bytes as-is.
	CompressionNone CompressionType = 0
	// CompressionGzip uses gzip.
	CompressionGzip CompressionType = 1
	// CompressionZstd uses zstd (better ratio, good for cold data).
	CompressionZstd CompressionType = 2
	// CompressionS2 uses s2 (snappy-compatible, very fast).
	CompressionS2 CompressionType = 3
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 CompressionType = 4
)

// ParseCompression maps a configuration name to a CompressionType.
func ParseCompression(name string) (CompressionType, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", name)
	}
}

// String returns the configuration name of the compression type.
func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func compress(c CompressionType, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil

	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case CompressionZstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil

	case CompressionS2:
		return s2.Encode(nil, data), nil

	case CompressionLZ4:
		// [uncompressed size uint32][block]; an empty block means stored raw
		out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
		binary.LittleEndian.PutUint32(out, uint32(len(data)))
		n, err := lz4.CompressBlock(data, out[4:], nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return append(out[:4], data...), nil
		}
		return out[:4+n], nil

	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}

func decompress(c CompressionType, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil

	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)

	case CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		return dec.DecodeAll(data, nil)

	case CompressionS2:
		return s2.Decode(nil, data)

	case CompressionLZ4:
		if len(data) < 4 {
			return nil, errors.New("lz4 block too small for header")
		}
		size := binary.LittleEndian.Uint32(data)
		block := data[4:]
		if uint32(len(block)) == size {
			return block, nil
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(block, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != size {
			return nil, errors.New("lz4 decompressed size mismatch")
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}
