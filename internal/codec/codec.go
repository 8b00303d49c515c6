// Package codec turns cache items into the byte payloads stored by the
// persistent and distributed adapters.
//
// Every payload starts with a small header naming the serializer and the
// compression used to write it:
//
//	[magic "FSC"][version][serializer][compression][body...]
//
// Decode reads the header rather than the codec's own settings, so payloads
// written before a configuration change stay readable.
package codec

import (
	"fmt"

	"fastsearch-cache/internal/common/errors"
)

const (
	headerVersion = 1
	headerSize    = 6
)

var magic = [3]byte{'F', 'S', 'C'}

// Codec encodes values with a fixed serializer and compression.
type Codec struct {
	serializer  SerializerType
	compression CompressionType
}

// New returns a codec for the given serializer and compression.
func New(serializer SerializerType, compression CompressionType) *Codec {
	return &Codec{serializer: serializer, compression: compression}
}

// NewFromNames builds a codec from configuration names such as "json" and "zstd".
func NewFromNames(serializer, compression string) (*Codec, error) {
	s, err := ParseSerializer(serializer)
	if err != nil {
		return nil, errors.ConfigError(err.Error())
	}
	c, err := ParseCompression(compression)
	if err != nil {
		return nil, errors.ConfigError(err.Error())
	}
	return New(s, c), nil
}

// Default returns the JSON, uncompressed codec.
func Default() *Codec {
	return New(SerializerJSON, CompressionNone)
}

// Serializer returns the serializer used by Encode.
func (c *Codec) Serializer() SerializerType { return c.serializer }

// Compression returns the compression used by Encode.
func (c *Codec) Compression() CompressionType { return c.compression }

// Encode serializes and compresses v behind a payload header.
func (c *Codec) Encode(v interface{}) ([]byte, error) {
	body, err := marshal(c.serializer, v)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("cannot serialize value: %v", err))
	}

	body, err = compress(c.compression, body)
	if err != nil {
		return nil, errors.InternalError("compression failed", err)
	}

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, magic[:])
	out[3] = headerVersion
	out[4] = byte(c.serializer)
	out[5] = byte(c.compression)
	return append(out, body...), nil
}

// Decode reverses Encode. Any malformed payload yields an ErrTypeCorrupted error.
func (c *Codec) Decode(data []byte, v interface{}) error {
	if len(data) < headerSize || data[0] != magic[0] || data[1] != magic[1] || data[2] != magic[2] {
		return errors.CorruptedError("missing payload header", nil)
	}
	if data[3] != headerVersion {
		return errors.CorruptedError(fmt.Sprintf("unsupported payload version %d", data[3]), nil)
	}

	body, err := decompress(CompressionType(data[5]), data[headerSize:])
	if err != nil {
		return errors.CorruptedError("decompression failed", err)
	}

	if err := unmarshal(SerializerType(data[4]), body, v); err != nil {
		return errors.CorruptedError("deserialization failed", err)
	}
	return nil
}
