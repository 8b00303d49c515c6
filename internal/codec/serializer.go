package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// SerializerType identifies the serialization format in the payload header.
type SerializerType uint8

const (
	// SerializerJSON encodes with encoding/json.
	SerializerJSON SerializerType = 1
	// SerializerGob encodes with encoding/gob.
	SerializerGob SerializerType = 2
)

// ParseSerializer maps a configuration name to a SerializerType.
func ParseSerializer(name string) (SerializerType, error) {
	switch name {
	case "", "json":
		return SerializerJSON, nil
	case "gob":
		return SerializerGob, nil
	default:
		return 0, fmt.Errorf("unknown serializer %q", name)
	}
}

// String returns the configuration name of the serializer.
func (s SerializerType) String() string {
	switch s {
	case SerializerJSON:
		return "json"
	case SerializerGob:
		return "gob"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func marshal(s SerializerType, v interface{}) ([]byte, error) {
	switch s {
	case SerializerJSON:
		return json.Marshal(v)
	case SerializerGob:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %d", s)
	}
}

func unmarshal(s SerializerType, data []byte, v interface{}) error {
	switch s {
	case SerializerJSON:
		return json.Unmarshal(data, v)
	case SerializerGob:
		return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
	default:
		return fmt.Errorf("unknown serializer %d", s)
	}
}
